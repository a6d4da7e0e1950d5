package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/profile"
)

// Extraction is the cleaned set of profile facts proposed for one exchange.
type Extraction struct {
	PersonalInfo profile.PersonalInfo
	Classes      []profile.Class
	Schedule     []string
	Activities   []string
	Preferences  Preferences
	Academic     Academic
	Notes        []string
}

// Preferences are list-valued preference proposals.
type Preferences struct {
	Dietary        []string
	Dining         []string
	StudyLocations []string
	Interests      []string
}

// Academic holds proposed academic fields. Unset fields are left alone.
type Academic struct {
	Advisor   string
	GPA       string
	DeansList *bool
}

// Empty reports whether the extraction proposes nothing.
func (x Extraction) Empty() bool {
	return x.PersonalInfo == (profile.PersonalInfo{}) &&
		len(x.Classes) == 0 &&
		len(x.Schedule) == 0 &&
		len(x.Activities) == 0 &&
		x.Preferences.empty() &&
		x.Academic == (Academic{}) &&
		len(x.Notes) == 0
}

func (p Preferences) empty() bool {
	return len(p.Dietary) == 0 && len(p.Dining) == 0 && len(p.StudyLocations) == 0 && len(p.Interests) == 0
}

// wireExtraction is the exact JSON shape the model must produce.
type wireExtraction struct {
	Extracted    *bool           `json:"extracted"`
	PersonalInfo *wirePersonal   `json:"personal_info"`
	Classes      []wireClass     `json:"classes"`
	Schedule     stringList      `json:"schedule"`
	Activities   stringList      `json:"activities"`
	Preferences  *wirePreference `json:"preferences"`
	Academic     *wireAcademic   `json:"academic"`
	Notes        stringList      `json:"notes"`
}

type wirePersonal struct {
	Name  profile.FlexString `json:"name"`
	Year  profile.FlexString `json:"year"`
	Major profile.FlexString `json:"major"`
	Minor profile.FlexString `json:"minor"`
}

type wireClass struct {
	Code      profile.FlexString `json:"code"`
	Name      profile.FlexString `json:"name"`
	Professor profile.FlexString `json:"professor"`
	Schedule  profile.FlexString `json:"schedule"`
	Location  profile.FlexString `json:"location"`
}

type wirePreference struct {
	Dietary        stringList `json:"dietary"`
	Dining         stringList `json:"dining"`
	StudyLocations stringList `json:"study_locations"`
	Interests      stringList `json:"interests"`
}

type wireAcademic struct {
	Advisor   profile.FlexString `json:"advisor"`
	GPA       profile.FlexString `json:"gpa"`
	DeansList *bool              `json:"dean_list"`
}

// stringList accepts a single string or an array of strings and numbers.
type stringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] != '[' {
		var s profile.FlexString
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = stringList{string(s)}
		return nil
	}
	var items []profile.FlexString
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, it := range items {
		out = append(out, string(it))
	}
	*l = out
	return nil
}

// Parse strictly decodes a model reply. {"extracted": false} yields an empty
// extraction. Any deviation from the expected shape is an error wrapping
// domerrors.ErrExtractionFailed.
func Parse(reply string) (Extraction, error) {
	body := stripCodeFence(reply)
	if body == "" {
		return Extraction{}, fmt.Errorf("%w: empty reply", domerrors.ErrExtractionFailed)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var w wireExtraction
	if err := dec.Decode(&w); err != nil {
		return Extraction{}, fmt.Errorf("%w: %w", domerrors.ErrExtractionFailed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Extraction{}, fmt.Errorf("%w: trailing data after object", domerrors.ErrExtractionFailed)
	}

	if w.Extracted != nil && !*w.Extracted {
		return Extraction{}, nil
	}
	return clean(w), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clean(w wireExtraction) Extraction {
	var x Extraction

	if p := w.PersonalInfo; p != nil {
		x.PersonalInfo = profile.PersonalInfo{
			Name:  trim(p.Name),
			Year:  NormalizeYear(string(p.Year)),
			Major: trim(p.Major),
			Minor: trim(p.Minor),
		}
	}

	for _, c := range w.Classes {
		class := profile.Class{
			Code:      trim(c.Code),
			Name:      trim(c.Name),
			Professor: trim(c.Professor),
			Schedule:  trim(c.Schedule),
			Location:  trim(c.Location),
		}
		if class.Code == "" && class.Name == "" {
			continue
		}
		x.Classes = append(x.Classes, class)
	}

	x.Schedule = cleanList(w.Schedule)
	x.Activities = cleanList(w.Activities)
	x.Notes = cleanList(w.Notes)

	if p := w.Preferences; p != nil {
		x.Preferences = Preferences{
			Dietary:        cleanList(p.Dietary),
			Dining:         cleanList(p.Dining),
			StudyLocations: cleanList(p.StudyLocations),
			Interests:      cleanList(p.Interests),
		}
	}

	if a := w.Academic; a != nil {
		x.Academic = Academic{
			Advisor:   trim(a.Advisor),
			GPA:       trim(a.GPA),
			DeansList: a.DeansList,
		}
	}
	return x
}

// NormalizeYear maps free-form class years onto freshman, sophomore, junior,
// senior or grad. Unrecognized values are kept lowercased.
func NormalizeYear(year string) string {
	y := strings.ToLower(strings.TrimSpace(year))
	switch {
	case y == "":
		return ""
	case strings.Contains(y, "fresh") || strings.Contains(y, "first"):
		return "freshman"
	case strings.Contains(y, "soph") || strings.Contains(y, "second"):
		return "sophomore"
	case strings.Contains(y, "junior") || strings.Contains(y, "third"):
		return "junior"
	case strings.Contains(y, "senior") || strings.Contains(y, "fourth"):
		return "senior"
	case strings.Contains(y, "grad"):
		return "grad"
	default:
		return y
	}
}

func trim(s profile.FlexString) string {
	return strings.TrimSpace(string(s))
}

func cleanList(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
