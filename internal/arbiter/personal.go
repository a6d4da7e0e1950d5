package arbiter

import (
	"context"
	"errors"
	"regexp"
	"strings"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	personalIndicators = compile(
		`\bmy\b`, `\bam i\b`, `\bi'm\b`, `\bdo i\b`,
		`\bwhat am i\b`, `\bwhen do i\b`, `\bwhere do i\b`, `\bwho is my\b`,
	)
	profileTopics = compile(
		`\bmajor\b`, `\bminor\b`, `\bclass(?:es)?\b`, `\bcourses?\b`,
		`\bschedule\b`, `\badvisor\b`, `\bactivit(?:y|ies)\b`, `\bclubs?\b`,
		`\bteam\b`, `\byear\b`, `\bgrade\b`, `\bgpa\b`, `\bprofessor\b`,
		`\bpractice\b`, `\bdietary\b`, `\ballerg(?:y|ies|ic)\b`,
		`\bfavorite\b`, `\bprefer(?:ence|red)?\b`,
	)
	identityQuestion = regexp.MustCompile(`who am i|tell me about (?:me|myself)|what do you know about me`)

	yearTopic     = regexp.MustCompile(`\byear\b|\bgrade\b`)
	classTopic    = regexp.MustCompile(`\bclass(?:es)?\b|\bcourses?\b`)
	scheduleTopic = regexp.MustCompile(`\bschedule\b|\bpractice\b|\bwhen do i\b`)
	dietaryTopic  = regexp.MustCompile(`\bdietary\b|\ballerg`)
	diningWords   = []string{"dining", "eat", "food", "caf"}
)

// IsPersonalQuestion reports whether a message asks about the user: a
// first-person phrase together with a profile topic, or an identity question
// such as "who am I".
func IsPersonalQuestion(message string) bool {
	q := textutil.Normalize(message)
	if identityQuestion.MatchString(q) {
		return true
	}
	return anyMatch(personalIndicators, q) && anyMatch(profileTopics, q)
}

// AnswerPersonal answers a personal question from p. Topics are tried in a
// fixed order; a topic whose field is empty falls through to the next. With
// nothing to say it returns UnknownReply.
func AnswerPersonal(message string, p *profile.Profile) string {
	if p == nil {
		return UnknownReply
	}
	q := textutil.Normalize(message)
	info := p.PersonalInfo

	if strings.Contains(q, "major") && info.Major != "" {
		return "Your major is " + info.Major + "."
	}
	if strings.Contains(q, "minor") {
		if info.Minor != "" {
			return "Your minor is " + info.Minor + "."
		}
		if info.Major != "" {
			return "I don't have information about your minor. You can tell me if you have one!"
		}
	}
	if yearTopic.MatchString(q) && info.Year != "" {
		return "You're a " + info.Year + "."
	}
	if classTopic.MatchString(q) && len(p.Schedule.Classes) > 0 {
		return classesReply(p.Schedule.Classes)
	}
	if scheduleTopic.MatchString(q) {
		if items := scheduleItems(p); len(items) > 0 {
			return "Here's what I know about your schedule:\n• " + strings.Join(items, "\n• ")
		}
	}
	if strings.Contains(q, "advisor") && p.Academic.Advisor != "" {
		return "Your advisor is " + p.Academic.Advisor + "."
	}
	if strings.Contains(q, "gpa") && p.Academic.GPA != "" {
		return "Your GPA is " + string(p.Academic.GPA) + "."
	}
	if dietaryTopic.MatchString(q) && len(p.Preferences.DietaryRestrictions) > 0 {
		return "Your dietary restrictions: " + strings.Join(p.Preferences.DietaryRestrictions, ", ") + "."
	}
	if strings.Contains(q, "favorite") && containsAny(q, diningWords) && len(p.Preferences.FavoriteDiningHalls) > 0 {
		return "Your favorite dining halls: " + strings.Join(p.Preferences.FavoriteDiningHalls, ", ") + "."
	}
	if identityQuestion.MatchString(q) {
		if s := identitySummary(p); s != "" {
			return s
		}
	}
	return UnknownReply
}

func classesReply(classes []profile.Class) string {
	items := make([]string, 0, len(classes))
	for _, c := range classes {
		s := c.Label()
		if c.Professor != "" {
			s += " with " + c.Professor
		}
		if c.Schedule != "" {
			s += " (" + c.Schedule + ")"
		}
		items = append(items, s)
	}
	if len(items) == 1 {
		return "You're taking " + items[0] + "."
	}
	return "You're taking these classes:\n• " + strings.Join(items, "\n• ")
}

func scheduleItems(p *profile.Profile) []string {
	items := append([]string(nil), p.Schedule.Extracurriculars...)
	for _, n := range p.Notes {
		lower := strings.ToLower(n.Text)
		if strings.Contains(lower, "schedule") || strings.Contains(lower, "practice") {
			items = append(items, n.Text)
		}
	}
	return items
}

func identitySummary(p *profile.Profile) string {
	var parts []string
	info := p.PersonalInfo
	if info.Name != "" {
		parts = append(parts, "Your name is "+info.Name)
	}
	if info.Year != "" {
		parts = append(parts, "You're a "+info.Year)
	}
	if info.Major != "" {
		parts = append(parts, "majoring in "+info.Major)
	}
	if info.Minor != "" {
		parts = append(parts, "with a minor in "+info.Minor)
	}
	if classes := p.Schedule.Classes; len(classes) > 0 {
		labels := make([]string, 0, 3)
		for _, c := range classes[:min(3, len(classes))] {
			labels = append(labels, c.Label())
		}
		parts = append(parts, "taking "+strings.Join(labels, ", "))
	}
	if acts := p.Schedule.Extracurriculars; len(acts) > 0 {
		parts = append(parts, "participating in "+strings.Join(acts[:min(3, len(acts))], ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// personal answers from the profile when the message is a personal
// question from an identified user. A missing profile answers UnknownReply;
// an unreachable store lets the next tier answer instead.
func (b *base) personal(ctx context.Context, req Request) (Reply, bool) {
	if b.deps.Profiles == nil || !identified(req.Username) || !IsPersonalQuestion(req.Message) {
		return Reply{}, false
	}
	ctx, span := tracer.Start(ctx, "arbiter.personal")
	defer span.End()

	p, err := b.deps.Profiles.Get(ctx, req.Username)
	switch {
	case errors.Is(err, domerrors.ErrNotFound):
		p = nil
	case err != nil:
		span.RecordError(err)
		b.log.WithError(err).WarnContext(ctx, "Profile lookup failed, skipping personal answer")
		return Reply{}, false
	}
	return Reply{
		Reply:   b.polish(AnswerPersonal(req.Message, p)),
		Sources: []string{ProfileSourceName},
		Source:  SourceProfile,
	}, true
}
