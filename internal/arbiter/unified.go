package arbiter

import (
	"context"
	"errors"
	"strings"

	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/faq"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

const maxUnifiedWebSources = 3

// Unified answers every non-greeting message with one completion call that
// sees the user's profile, related FAQ entries and freshly fetched pages.
type Unified struct {
	*base
}

// Strategy implements Arbiter.
func (u *Unified) Strategy() string { return config.StrategyUnified }

// Answer implements Arbiter.
func (u *Unified) Answer(ctx context.Context, req Request) (reply Reply) {
	ctx, finish := u.start(ctx, config.StrategyUnified, req)
	defer finish(&reply)

	if IsGreeting(req.Message) {
		return greetingReply()
	}
	r, err := u.answer(ctx, req)
	if err != nil {
		u.log.WithError(err).ErrorContext(ctx, "Failed to answer with combined context")
		return fallbackReply()
	}
	return r
}

func (u *Unified) answer(ctx context.Context, req Request) (Reply, error) {
	if u.deps.LLM == nil {
		return Reply{}, errNoLLM
	}
	ctx, span := tracer.Start(ctx, "arbiter.unified")
	defer span.End()

	profileText, hasProfile := u.profileContext(ctx, req.Username)
	var faqs []faq.Entry
	if u.deps.FAQ != nil {
		faqs = u.deps.FAQ.Relevant(req.Message, faq.DefaultRelevantMax, faq.DefaultRelevantScan)
	}
	webText, webSources := u.webContext(ctx, req.Message)
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	userContext := "USER PROFILE:\n" + profileText +
		"\n\nFAQ DATABASE:\n" + faq.FormatContext(faqs) +
		"\n\nWEB CONTENT:\n" + textutil.Truncate(webText, u.opts.ContextBudget)
	answer, err := u.complete(ctx, unifiedSystemPrompt, userContext, req.Message+"\n\n"+unifiedClosing)
	if err != nil {
		return Reply{}, err
	}

	text := u.deps.Sanitizer.Sanitize(answer)
	text = textutil.CleanTechnicalReferences(text)
	text = textutil.FormatReply(text)
	text = textutil.StripLinkMarkup(text)

	source := DetectSourceType(text, hasProfile, len(faqs) > 0, len(webSources) > 0)
	sources := make([]string, 0, 1+maxUnifiedWebSources)
	if strings.HasPrefix(source, SourceProfile) {
		sources = append(sources, ProfileSourceName)
	}
	for _, s := range webSources[:min(maxUnifiedWebSources, len(webSources))] {
		sources = append(sources, textutil.CleanURL(s))
	}
	return Reply{Reply: text, Sources: sources, Source: source}, nil
}

// profileContext renders the profile section. hasProfile is false when there
// is nothing about the user worth showing.
func (u *Unified) profileContext(ctx context.Context, username string) (text string, hasProfile bool) {
	if !identified(username) {
		return anonymousProfileText, false
	}
	noData := "User: " + username + " (no profile data yet)"
	if u.deps.Profiles == nil {
		return noData, false
	}
	p, err := u.deps.Profiles.Get(ctx, username)
	if err != nil {
		if !errors.Is(err, domerrors.ErrNotFound) {
			u.log.WithError(err).WarnContext(ctx, "Profile lookup failed, answering without it")
		}
		return noData, false
	}

	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Name", p.PersonalInfo.Name)
	add("Major", p.PersonalInfo.Major)
	add("Year", p.PersonalInfo.Year)
	if len(p.Schedule.Classes) > 0 {
		lines = append(lines, "\nClasses:")
		for _, c := range p.Schedule.Classes {
			code := c.Code
			if code == "" {
				code = "Unknown"
			}
			line := "  • " + code
			if c.Name != "" {
				line += " - " + c.Name
			}
			lines = append(lines, line)
		}
	}
	if acts := p.Schedule.Extracurriculars; len(acts) > 0 {
		lines = append(lines, "\nActivities: "+strings.Join(acts, ", "))
	}
	add("Dietary", strings.Join(p.Preferences.DietaryRestrictions, ", "))
	add("Favorite Dining", strings.Join(p.Preferences.FavoriteDiningHalls, ", "))

	if len(lines) == 0 {
		return minimalProfileText, false
	}
	return "User: " + username + "\n\n" + strings.Join(lines, "\n"), true
}

// webContext fetches the top ranked pages as "From <url>:" sections.
func (u *Unified) webContext(ctx context.Context, message string) (string, []string) {
	if u.deps.Ranker == nil || u.deps.Fetcher == nil {
		return noWebContentText, nil
	}
	urls := u.deps.Ranker.Rank(message, u.opts.UnifiedTopK)
	res := u.deps.Fetcher.FetchAll(ctx, urls, fetcher.Options{
		PageLimit: u.opts.UnifiedPageLimit,
		Timeout:   u.opts.FetchTimeout,
	})
	if len(res.Pages) == 0 {
		return noWebContentText, nil
	}
	parts := make([]string, 0, len(res.Pages))
	for _, p := range res.Pages {
		parts = append(parts, "From "+p.URL+":\n"+p.Text+"\n")
	}
	return strings.Join(parts, "\n"), res.Sources
}

var profileMarkers = []string{"you're", "your classes", "your major"}

// DetectSourceType guesses which context sections a unified answer drew on.
// The profile counts only when the reply addresses the user directly.
func DetectSourceType(reply string, hasProfile, hasFAQ, hasWeb bool) string {
	lower := strings.ToLower(reply)
	switch {
	case hasProfile && containsAny(lower, profileMarkers):
		if hasWeb {
			return "profile+web"
		}
		return "profile"
	case hasFAQ:
		if hasWeb {
			return "faq+web"
		}
		return "faq"
	case hasWeb:
		return "web"
	default:
		return "general"
	}
}
