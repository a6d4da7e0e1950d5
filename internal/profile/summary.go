package profile

import (
	"slices"
	"strings"
)

const recentNotes = 5

// ContextSummary renders the profile block added to answer prompts. It
// returns "" when the profile holds nothing worth mentioning.
func ContextSummary(p *Profile) string {
	if p == nil {
		return ""
	}
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	add("Student name", p.PersonalInfo.Name)
	add("Year", p.PersonalInfo.Year)
	add("Major", p.PersonalInfo.Major)
	add("Minor", p.PersonalInfo.Minor)

	var classes []string
	for _, c := range p.Schedule.Classes {
		if c.Name != "" {
			classes = append(classes, c.Name)
		} else if c.Code != "" {
			classes = append(classes, c.Code)
		}
	}
	add("Current classes", strings.Join(classes, ", "))
	add("Activities", strings.Join(p.Schedule.Extracurriculars, ", "))
	add("Favorite dining", strings.Join(p.Preferences.FavoriteDiningHalls, ", "))
	add("Dietary needs", strings.Join(p.Preferences.DietaryRestrictions, ", "))

	for _, n := range RecentNotes(p, recentNotes) {
		add("Note", n.Text)
	}

	if len(parts) == 0 {
		return ""
	}
	return "USER PROFILE INFORMATION:\n" + strings.Join(parts, "\n")
}

// RecentNotes returns up to n notes, newest first.
func RecentNotes(p *Profile, n int) []Note {
	notes := slices.Clone(p.Notes)
	slices.SortStableFunc(notes, func(a, b Note) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(notes) > n {
		notes = notes[:n]
	}
	return notes
}

// BriefSummary is a one-line digest used to keep extraction from repeating
// known facts.
func BriefSummary(p *Profile) string {
	if p == nil {
		return "No profile yet"
	}
	var parts []string
	if p.PersonalInfo.Year != "" {
		parts = append(parts, "Year: "+p.PersonalInfo.Year)
	}
	if p.PersonalInfo.Major != "" {
		parts = append(parts, "Major: "+p.PersonalInfo.Major)
	}
	if len(p.Schedule.Classes) > 0 {
		var codes []string
		for _, c := range p.Schedule.Classes[:min(3, len(p.Schedule.Classes))] {
			codes = append(codes, c.Label())
		}
		parts = append(parts, "Classes: "+strings.Join(codes, ", "))
	}
	if acts := p.Schedule.Extracurriculars; len(acts) > 0 {
		parts = append(parts, "Activities: "+strings.Join(acts[:min(3, len(acts))], ", "))
	}
	if len(parts) == 0 {
		return "No profile yet"
	}
	return strings.Join(parts, " | ")
}
