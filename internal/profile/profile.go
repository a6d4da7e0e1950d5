// Package profile models per-user profile documents and the stores that
// persist them.
package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current profile document version. Version 1
// documents carry no version field and store notes as bare strings.
const SchemaVersion = 2

// Profile is a user's profile document.
type Profile struct {
	Version      int          `json:"version" bson:"version"`
	Username     string       `json:"username" bson:"username"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
	PersonalInfo PersonalInfo `json:"personal_info" bson:"personal_info"`
	Schedule     Schedule     `json:"schedule" bson:"schedule"`
	Preferences  Preferences  `json:"preferences" bson:"preferences"`
	Academic     Academic     `json:"academic" bson:"academic"`
	Notes        []Note       `json:"notes" bson:"notes"`
}

// PersonalInfo holds identity and program fields.
type PersonalInfo struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Year  string `json:"year,omitempty" bson:"year,omitempty"`
	Major string `json:"major,omitempty" bson:"major,omitempty"`
	Minor string `json:"minor,omitempty" bson:"minor,omitempty"`
}

// Class is one enrolled course.
type Class struct {
	Code      string     `json:"code,omitempty" bson:"code,omitempty"`
	Name      string     `json:"name,omitempty" bson:"name,omitempty"`
	Professor string     `json:"professor,omitempty" bson:"professor,omitempty"`
	Schedule  string     `json:"schedule,omitempty" bson:"schedule,omitempty"`
	Location  string     `json:"location,omitempty" bson:"location,omitempty"`
	AddedAt   *time.Time `json:"added_at,omitempty" bson:"added_at,omitempty"`
}

// Label returns the class code, or its name when there is no code.
func (c Class) Label() string {
	if c.Code != "" {
		return c.Code
	}
	return c.Name
}

// Schedule holds classes and recurring commitments.
type Schedule struct {
	Classes          []Class  `json:"classes" bson:"classes"`
	StudyTimes       []string `json:"study_times" bson:"study_times"`
	Extracurriculars []string `json:"extracurriculars" bson:"extracurriculars"`
}

// Preferences holds list-valued likes and needs.
type Preferences struct {
	FavoriteDiningHalls []string `json:"favorite_dining_halls" bson:"favorite_dining_halls"`
	DietaryRestrictions []string `json:"dietary_restrictions" bson:"dietary_restrictions"`
	StudyLocations      []string `json:"study_locations" bson:"study_locations"`
	TopicsOfInterest    []string `json:"topics_of_interest" bson:"topics_of_interest"`
}

// Academic holds advising and standing.
type Academic struct {
	Advisor   string     `json:"advisor,omitempty" bson:"advisor,omitempty"`
	GPA       FlexString `json:"gpa,omitempty" bson:"gpa,omitempty"`
	DeansList bool       `json:"dean_list" bson:"dean_list"`
}

// Note is something learned about the user.
type Note struct {
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// FlexString decodes a JSON string or number. Models report GPA both ways.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// New returns an empty current-version profile.
func New(username string, now time.Time) *Profile {
	p := &Profile{
		Version:   SchemaVersion,
		Username:  username,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	p.normalize()
	return p
}

// normalize replaces nil slices with empty ones so stored documents always
// carry arrays.
func (p *Profile) normalize() {
	if p.Schedule.Classes == nil {
		p.Schedule.Classes = []Class{}
	}
	if p.Schedule.StudyTimes == nil {
		p.Schedule.StudyTimes = []string{}
	}
	if p.Schedule.Extracurriculars == nil {
		p.Schedule.Extracurriculars = []string{}
	}
	if p.Preferences.FavoriteDiningHalls == nil {
		p.Preferences.FavoriteDiningHalls = []string{}
	}
	if p.Preferences.DietaryRestrictions == nil {
		p.Preferences.DietaryRestrictions = []string{}
	}
	if p.Preferences.StudyLocations == nil {
		p.Preferences.StudyLocations = []string{}
	}
	if p.Preferences.TopicsOfInterest == nil {
		p.Preferences.TopicsOfInterest = []string{}
	}
	if p.Notes == nil {
		p.Notes = []Note{}
	}
}

// Decode parses a stored JSON document of any schema version.
func Decode(doc []byte) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return Migrate(raw)
}

// Migrate upgrades a raw document to the current schema. It accepts
// version 0 documents, which kept name, year, major and minor at the top
// level, and version 1 documents, which stored notes as plain strings and
// classes as plain names. Unknown fields are dropped.
func Migrate(raw map[string]any) (*Profile, error) {
	plain, err := plainMap(raw)
	if err != nil {
		return nil, err
	}

	if _, ok := plain["personal_info"].(map[string]any); !ok {
		personal := map[string]any{}
		for _, k := range []string{"name", "year", "major", "minor"} {
			if v, ok := plain[k]; ok {
				personal[k] = v
				delete(plain, k)
			}
		}
		plain["personal_info"] = personal
	}

	if notes, ok := plain["notes"].([]any); ok {
		for i, n := range notes {
			if s, ok := n.(string); ok {
				notes[i] = map[string]any{"text": s}
			}
		}
	}

	if schedule, ok := plain["schedule"].(map[string]any); ok {
		if classes, ok := schedule["classes"].([]any); ok {
			for i, c := range classes {
				if s, ok := c.(string); ok {
					classes[i] = map[string]any{"name": s}
				}
			}
		}
	}

	// Version 1 wrote explicit nulls for unset personal fields.
	for _, section := range []string{"personal_info", "academic"} {
		if m, ok := plain[section].(map[string]any); ok {
			for k, v := range m {
				if v == nil {
					delete(m, k)
				}
			}
		}
	}

	b, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("migrate profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("migrate profile: %w", err)
	}
	p.Version = SchemaVersion
	p.normalize()
	return &p, nil
}

// plainMap deep-copies raw into plain JSON types, so driver-specific map,
// array and date types become map[string]any, []any and strings.
func plainMap(raw map[string]any) (map[string]any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("migrate profile: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("migrate profile: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
