package arbiter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/faq"
	"github.com/qchat-dev/qchat-go/internal/profile"
)

func newUnified(t *testing.T, deps Deps) Arbiter {
	t.Helper()
	if deps.FAQ == nil {
		table, err := faq.Default()
		require.NoError(t, err)
		deps.FAQ = table
	}
	opts := DefaultOptions()
	opts.Strategy = config.StrategyUnified
	a, err := New(opts, deps)
	require.NoError(t, err)
	require.Equal(t, config.StrategyUnified, a.Strategy())
	return a
}

func TestUnified_Greeting(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{}
	a := newUnified(t, Deps{LLM: llm})
	r := a.Answer(context.Background(), Request{Message: "hey!"})
	assert.Equal(t, GreetingReply, r.Reply)
	assert.Empty(t, llm.calls())
}

func TestUnified_CombinesContext(t *testing.T) {
	t.Parallel()
	store := newProfiles(t)
	withMajor(t, store, "eli", "Finance")
	require.True(t, store.AppendToArray(context.Background(), "eli", profile.PathClasses, profile.Class{Code: "FIN201", Name: "Corporate Finance"}))

	web := &fakeWeb{pages: testPages()}
	llm := &fakeLLM{reply: `Based on the FAQ DATABASE, your major is Finance. See <a href="https://www.qu.edu/events/">events</a>`}
	a := newUnified(t, Deps{
		Profiles: store,
		LLM:      llm,
		Ranker:   fixedRanker{eventsURL, diningURL, housingURL, "https://www.qu.edu/extra/"},
		Fetcher:  web,
	})

	r := a.Answer(context.Background(), Request{Message: "What events fit my schedule?", Username: "eli"})
	assert.Equal(t, "profile+web", r.Source)
	assert.Equal(t, []string{ProfileSourceName, eventsURL, diningURL, housingURL}, r.Sources)
	assert.NotContains(t, r.Reply, "FAQ DATABASE")
	assert.NotContains(t, r.Reply, "<a")
	assert.Equal(t, "your major is Finance. See events", r.Reply)

	calls := llm.calls()
	require.Len(t, calls, 1)
	ctx := calls[0].UserContext
	assert.Equal(t, unifiedSystemPrompt, calls[0].System)
	assert.Contains(t, ctx, "USER PROFILE:\nUser: eli\n\nMajor: Finance\n\nClasses:\n  • FIN201 - Corporate Finance")
	assert.Contains(t, ctx, "FAQ DATABASE:\n")
	assert.Contains(t, ctx, "WEB CONTENT:\nFrom "+eventsURL+":\nCampus events")
	assert.Contains(t, calls[0].Question, unifiedClosing)
	require.Len(t, web.asked, 1)
	assert.Len(t, web.asked[0], 3, "unified fetches the top three pages")
}

func TestUnified_AnonymousWithoutWeb(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{reply: "Quinnipiac has three campuses."}
	a := newUnified(t, Deps{LLM: llm})

	r := a.Answer(context.Background(), Request{Message: "How many campuses are there?", Username: Anonymous})
	assert.Equal(t, "Quinnipiac has three campuses.", r.Reply)
	assert.Empty(t, r.Sources)

	calls := llm.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserContext, anonymousProfileText)
	assert.Contains(t, calls[0].UserContext, noWebContentText)
}

func TestUnified_ProfileContextVariants(t *testing.T) {
	t.Parallel()
	store := newProfiles(t)
	withMajor(t, store, "empty", "")
	u := newUnified(t, Deps{Profiles: store, LLM: &fakeLLM{}}).(*Unified)
	ctx := context.Background()

	text, ok := u.profileContext(ctx, "empty")
	assert.Equal(t, minimalProfileText, text)
	assert.False(t, ok)

	text, ok = u.profileContext(ctx, "ghost")
	assert.Equal(t, "User: ghost (no profile data yet)", text)
	assert.False(t, ok)

	text, ok = u.profileContext(ctx, "")
	assert.Equal(t, anonymousProfileText, text)
	assert.False(t, ok)

	down := newUnified(t, Deps{Profiles: unavailableStore{}, LLM: &fakeLLM{}}).(*Unified)
	text, ok = down.profileContext(ctx, "amy")
	assert.Equal(t, "User: amy (no profile data yet)", text)
	assert.False(t, ok)
}

func TestUnified_ErrorFallback(t *testing.T) {
	t.Parallel()
	a := newUnified(t, Deps{LLM: &fakeLLM{err: errors.New("timeout")}})
	r := a.Answer(context.Background(), Request{Message: "How many campuses are there?"})
	assert.Equal(t, FallbackReply, r.Reply)
	assert.Equal(t, SourceError, r.Source)
	assert.Empty(t, r.Sources)
}

func TestDetectSourceType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		reply                string
		profile, faqs, pages bool
		want                 string
	}{
		{"You're a junior.", true, true, true, "profile+web"},
		{"You're a junior.", true, false, false, "profile"},
		{"The library opens at 8.", true, true, false, "faq"},
		{"The library opens at 8.", false, true, true, "faq+web"},
		{"You're a junior.", false, false, true, "web"},
		{"Hello.", false, false, false, "general"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectSourceType(tt.reply, tt.profile, tt.faqs, tt.pages))
	}
}
