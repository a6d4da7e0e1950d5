package extractor

import (
	"context"
	"slices"

	"github.com/qchat-dev/qchat-go/internal/profile"
)

// Apply writes an extraction through store. It only adds or sets fields and
// never removes existing values. It reports whether any write succeeded.
func Apply(ctx context.Context, store profile.Store, username string, x Extraction) bool {
	if username == "" || x.Empty() {
		return false
	}
	updated := false
	track := func(ok bool) {
		updated = updated || ok
	}

	if personal := personalUpdates(x.PersonalInfo); len(personal) > 0 {
		track(store.Update(ctx, username, personal))
	}

	for _, c := range x.Classes {
		track(store.AppendToArray(ctx, username, profile.PathClasses, c))
	}
	for _, item := range x.Schedule {
		track(profile.AddNote(ctx, store, username, "Schedule: "+item))
	}
	for _, a := range x.Activities {
		track(store.AppendToArray(ctx, username, profile.PathExtracurriculars, a))
	}

	if !x.Preferences.empty() {
		var current profile.Preferences
		if p, err := store.Get(ctx, username); err == nil {
			current = p.Preferences
		}
		prefs := map[string]any{}
		mergeInto(prefs, profile.PathDietary, current.DietaryRestrictions, x.Preferences.Dietary)
		mergeInto(prefs, profile.PathFavoriteDiningHalls, current.FavoriteDiningHalls, x.Preferences.Dining)
		mergeInto(prefs, profile.PathStudyLocations, current.StudyLocations, x.Preferences.StudyLocations)
		mergeInto(prefs, profile.PathTopicsOfInterest, current.TopicsOfInterest, x.Preferences.Interests)
		if len(prefs) > 0 {
			track(store.Update(ctx, username, prefs))
		}
	}

	if academic := academicUpdates(x.Academic); len(academic) > 0 {
		track(store.Update(ctx, username, academic))
	}

	for _, n := range x.Notes {
		track(profile.AddNote(ctx, store, username, n))
	}
	return updated
}

func personalUpdates(p profile.PersonalInfo) map[string]any {
	u := map[string]any{}
	setIf(u, profile.PathName, p.Name)
	setIf(u, profile.PathYear, p.Year)
	setIf(u, profile.PathMajor, p.Major)
	setIf(u, profile.PathMinor, p.Minor)
	return u
}

func academicUpdates(a Academic) map[string]any {
	u := map[string]any{}
	setIf(u, profile.PathAdvisor, a.Advisor)
	setIf(u, profile.PathGPA, a.GPA)
	if a.DeansList != nil {
		u[profile.PathDeansList] = *a.DeansList
	}
	return u
}

func setIf(u map[string]any, path, value string) {
	if value != "" {
		u[path] = value
	}
}

// mergeInto sets path to existing plus the unseen items, when there are any.
func mergeInto(u map[string]any, path string, existing, items []string) {
	merged := slices.Clone(existing)
	for _, it := range items {
		if !slices.Contains(merged, it) {
			merged = append(merged, it)
		}
	}
	if len(merged) > len(existing) {
		u[path] = merged
	}
}
