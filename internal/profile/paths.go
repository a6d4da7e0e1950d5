package profile

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

// Updatable dot paths.
const (
	PathName                = "personal_info.name"
	PathYear                = "personal_info.year"
	PathMajor               = "personal_info.major"
	PathMinor               = "personal_info.minor"
	PathClasses             = "schedule.classes"
	PathStudyTimes          = "schedule.study_times"
	PathExtracurriculars    = "schedule.extracurriculars"
	PathFavoriteDiningHalls = "preferences.favorite_dining_halls"
	PathDietary             = "preferences.dietary_restrictions"
	PathStudyLocations      = "preferences.study_locations"
	PathTopicsOfInterest    = "preferences.topics_of_interest"
	PathAdvisor             = "academic.advisor"
	PathGPA                 = "academic.gpa"
	PathDeansList           = "academic.dean_list"
	PathNotes               = "notes"
)

// field binds a dot path to the Profile value it addresses.
type field struct {
	// ptr returns a pointer to the field inside p.
	ptr func(p *Profile) any
	// array paths accept AppendToArray.
	array bool
}

var fields = map[string]field{
	PathName:                {ptr: func(p *Profile) any { return &p.PersonalInfo.Name }},
	PathYear:                {ptr: func(p *Profile) any { return &p.PersonalInfo.Year }},
	PathMajor:               {ptr: func(p *Profile) any { return &p.PersonalInfo.Major }},
	PathMinor:               {ptr: func(p *Profile) any { return &p.PersonalInfo.Minor }},
	PathClasses:             {ptr: func(p *Profile) any { return &p.Schedule.Classes }, array: true},
	PathStudyTimes:          {ptr: func(p *Profile) any { return &p.Schedule.StudyTimes }, array: true},
	PathExtracurriculars:    {ptr: func(p *Profile) any { return &p.Schedule.Extracurriculars }, array: true},
	PathFavoriteDiningHalls: {ptr: func(p *Profile) any { return &p.Preferences.FavoriteDiningHalls }, array: true},
	PathDietary:             {ptr: func(p *Profile) any { return &p.Preferences.DietaryRestrictions }, array: true},
	PathStudyLocations:      {ptr: func(p *Profile) any { return &p.Preferences.StudyLocations }, array: true},
	PathTopicsOfInterest:    {ptr: func(p *Profile) any { return &p.Preferences.TopicsOfInterest }, array: true},
	PathAdvisor:             {ptr: func(p *Profile) any { return &p.Academic.Advisor }},
	PathGPA:                 {ptr: func(p *Profile) any { return &p.Academic.GPA }},
	PathDeansList:           {ptr: func(p *Profile) any { return &p.Academic.DeansList }},
	PathNotes:               {ptr: func(p *Profile) any { return &p.Notes }, array: true},
}

// Paths lists the updatable dot paths in sorted order.
func Paths() []string {
	out := make([]string, 0, len(fields))
	for p := range fields {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ValidateUpdates checks that every key is a known path and every value
// decodes into that field's type.
func ValidateUpdates(updates map[string]any) error {
	if len(updates) == 0 {
		return domerrors.NewValidationError("updates", "no fields to update")
	}
	scratch := New("", time.Time{})
	for path, value := range updates {
		if err := setField(scratch, path, value); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdates sets each path on p.
func ApplyUpdates(p *Profile, updates map[string]any) error {
	for path, value := range updates {
		if err := setField(p, path, value); err != nil {
			return err
		}
	}
	p.normalize()
	return nil
}

// NormalizeUpdates decodes each value into its field type and returns the
// typed values, ready for a document store.
func NormalizeUpdates(updates map[string]any) (map[string]any, error) {
	if err := ValidateUpdates(updates); err != nil {
		return nil, err
	}
	scratch := New("", time.Time{})
	out := make(map[string]any, len(updates))
	for path, value := range updates {
		_ = setField(scratch, path, value)
		out[path] = deref(fields[path].ptr(scratch))
	}
	return out, nil
}

// AppendValue adds value to the array at path unless an equal element is
// already present. It reports whether the array changed.
func AppendValue(p *Profile, path string, value any) (bool, error) {
	item, err := NormalizeArrayValue(path, value)
	if err != nil {
		return false, err
	}
	switch dst := fields[path].ptr(p).(type) {
	case *[]string:
		s := item.(string)
		if slices.Contains(*dst, s) {
			return false, nil
		}
		*dst = append(*dst, s)
	case *[]Class:
		c := item.(Class)
		if slices.ContainsFunc(*dst, func(x Class) bool { return classEqual(x, c) }) {
			return false, nil
		}
		*dst = append(*dst, c)
	case *[]Note:
		n := item.(Note)
		if slices.ContainsFunc(*dst, func(x Note) bool { return x.Text == n.Text && x.Timestamp.Equal(n.Timestamp) }) {
			return false, nil
		}
		*dst = append(*dst, n)
	}
	return true, nil
}

// NormalizeArrayValue decodes value into the element type of the array at
// path.
func NormalizeArrayValue(path string, value any) (any, error) {
	f, ok := fields[path]
	if !ok || !f.array {
		return nil, domerrors.NewValidationError(path, "not an array field")
	}
	var err error
	switch fields[path].ptr(New("", time.Time{})).(type) {
	case *[]string:
		var s string
		if err = convert(value, &s); err == nil {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, domerrors.NewValidationError(path, "empty value")
			}
			return s, nil
		}
	case *[]Class:
		var c Class
		if err = convert(value, &c); err == nil {
			if c.Label() == "" {
				return nil, domerrors.NewValidationError(path, "class needs a code or name")
			}
			return c, nil
		}
	case *[]Note:
		var n Note
		if err = convert(value, &n); err == nil {
			if strings.TrimSpace(n.Text) == "" {
				return nil, domerrors.NewValidationError(path, "empty note")
			}
			return n, nil
		}
	}
	return nil, domerrors.NewValidationError(path, err.Error())
}

func setField(p *Profile, path string, value any) error {
	f, ok := fields[path]
	if !ok {
		return domerrors.NewValidationError(path, "unknown profile field")
	}
	dst := f.ptr(p)
	if err := convert(value, dst); err != nil {
		return domerrors.NewValidationError(path, err.Error())
	}
	return nil
}

// convert decodes value into dst through its JSON form, so plain maps from
// request bodies become typed structs.
func convert(value, dst any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	return nil
}

func deref(ptr any) any {
	switch v := ptr.(type) {
	case *string:
		return *v
	case *FlexString:
		return string(*v)
	case *bool:
		return *v
	case *[]string:
		return *v
	case *[]Class:
		return *v
	case *[]Note:
		return *v
	default:
		return nil
	}
}

func classEqual(a, b Class) bool {
	return a.Code == b.Code && a.Name == b.Name && a.Professor == b.Professor &&
		a.Schedule == b.Schedule && a.Location == b.Location
}
