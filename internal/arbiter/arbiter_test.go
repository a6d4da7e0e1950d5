package arbiter

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/extractor"
	"github.com/qchat-dev/qchat-go/internal/faq"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/storage"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

const (
	diningURL  = "https://www.qu.edu/student-life/dining/"
	housingURL = "https://www.qu.edu/student-life/housing/"
	eventsURL  = "https://www.qu.edu/events/"
)

func testPages() map[string]string {
	return map[string]string{
		diningURL:  "The dining hall serves breakfast, lunch and dinner. Dining hours are 7am to 9pm on weekdays.",
		housingURL: "Residence halls house first year students. Housing applications open in March for returning students.",
		eventsURL:  "Campus events include concerts, lectures and athletics games every weekend during the semester.",
	}
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	panics  bool
	prompts []genai.Prompt
}

func (f *fakeLLM) Complete(_ context.Context, p genai.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("provider exploded")
	}
	f.prompts = append(f.prompts, p)
	return f.reply, f.err
}

func (f *fakeLLM) Provider() genai.Provider { return genai.ProviderOllama }

func (f *fakeLLM) calls() []genai.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]genai.Prompt(nil), f.prompts...)
}

// fakeWeb serves fixed page texts to both the index builder and on-demand
// fetches.
type fakeWeb struct {
	mu    sync.Mutex
	pages map[string]string
	asked [][]string
}

func (w *fakeWeb) FetchPages(_ context.Context, urls []string, opts fetcher.Options) []fetcher.Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.asked = append(w.asked, append([]string(nil), urls...))
	var out []fetcher.Page
	for _, u := range urls {
		if text, ok := w.pages[u]; ok {
			out = append(out, fetcher.Page{URL: u, Text: textutil.Truncate(text, opts.PageLimit)})
		}
	}
	return out
}

func (w *fakeWeb) FetchAll(ctx context.Context, urls []string, opts fetcher.Options) fetcher.Result {
	pages := w.FetchPages(ctx, urls, opts)
	var b strings.Builder
	var sources []string
	for _, p := range pages {
		b.WriteString("\n\n--- From " + p.URL + " ---\n" + p.Text)
		sources = append(sources, p.URL)
	}
	return fetcher.Result{Context: b.String(), Sources: sources, Pages: pages}
}

type fixedRanker []string

func (r fixedRanker) Rank(_ string, topK int) []string {
	return r[:min(topK, len(r))]
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []extractor.Job
}

func (q *fakeQueue) Submit(job extractor.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) submitted() []extractor.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]extractor.Job(nil), q.jobs...)
}

// wordEmbedder hashes words into buckets so texts sharing words are close.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 64)
	v[0] = 0.01
	for _, w := range textutil.Words(textutil.Normalize(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%63)]++
	}
	return v, nil
}

func (wordEmbedder) ModelID() string { return "words@64" }

func (wordEmbedder) Dimensions() int { return 64 }

type unavailableStore struct {
	profile.Store
}

func (unavailableStore) Get(context.Context, string) (*profile.Profile, error) {
	return nil, domerrors.ErrStoreUnavailable
}

func newProfiles(t *testing.T) *profile.SQLiteStore {
	t.Helper()
	db, err := storage.NewTestDB(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return profile.NewSQLiteStore(db, nil)
}

func withMajor(t *testing.T, store profile.Store, username, major string) {
	t.Helper()
	_, err := store.Create(context.Background(), username)
	require.NoError(t, err)
	if major != "" {
		require.True(t, store.Update(context.Background(), username, map[string]any{profile.PathMajor: major}))
	}
}

func builtIndex(t *testing.T, web *fakeWeb) *index.Cache {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "index")
	_, err := index.Build(context.Background(), index.BuildOptions{
		Dir:      dir,
		URLs:     []string{diningURL, housingURL, eventsURL},
		Fetcher:  web,
		Embedder: wordEmbedder{},
		Splitter: index.NewSplitter(1000, 200),
	})
	require.NoError(t, err)
	return index.NewCache(func(ctx context.Context) (*index.Handle, error) {
		return index.Load(ctx, index.LoadOptions{Dir: dir, Embedder: wordEmbedder{}})
	})
}

func missingIndex() *index.Cache {
	return index.NewCache(func(context.Context) (*index.Handle, error) {
		return nil, domerrors.ErrIndexNotBuilt
	})
}

func newTiered(t *testing.T, deps Deps) Arbiter {
	t.Helper()
	if deps.FAQ == nil {
		table, err := faq.Default()
		require.NoError(t, err)
		deps.FAQ = table
	}
	a, err := New(DefaultOptions(), deps)
	require.NoError(t, err)
	require.Equal(t, config.StrategyTiered, a.Strategy())
	return a
}

func TestTiered_Greeting(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{}
	queue := &fakeQueue{}
	a := newTiered(t, Deps{LLM: llm, Extractions: queue})

	r := a.Answer(context.Background(), Request{Message: "hi", Username: "amy"})
	assert.Equal(t, GreetingReply, r.Reply)
	assert.Equal(t, SourceGreeting, r.Source)
	assert.NotNil(t, r.Sources)
	assert.Empty(t, r.Sources)
	assert.Empty(t, llm.calls(), "greetings never reach the model")
	assert.Empty(t, queue.submitted())
}

func TestTiered_FAQAnswerIsVerbatim(t *testing.T) {
	t.Parallel()
	table, err := faq.Default()
	require.NoError(t, err)
	llm := &fakeLLM{}
	m := metrics.New(prometheus.NewRegistry())
	a := newTiered(t, Deps{FAQ: table, LLM: llm, Metrics: m})

	r := a.Answer(context.Background(), Request{Message: "When are bills available?"})

	var want *faq.Entry
	for _, e := range table.Entries() {
		if e.Question == "When are bills available?" {
			want = &e
			break
		}
	}
	require.NotNil(t, want)
	assert.Equal(t, want.Answer, r.Reply)
	assert.Equal(t, SourceFAQ, r.Source)
	assert.Equal(t, want.Category, r.Category)
	assert.GreaterOrEqual(t, r.FAQScore, faq.MinimumScore)
	assert.Empty(t, r.Sources)
	assert.Empty(t, llm.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FAQMatchesTotal.WithLabelValues(want.Category)))
}

func TestTiered_PersonalAnswer(t *testing.T) {
	t.Parallel()
	store := newProfiles(t)
	withMajor(t, store, "bea", "Biology")
	queue := &fakeQueue{}
	llm := &fakeLLM{}
	a := newTiered(t, Deps{Profiles: store, LLM: llm, Extractions: queue})

	r := a.Answer(context.Background(), Request{Message: "What's my major?", Username: "bea"})
	assert.Contains(t, r.Reply, "Biology")
	assert.Equal(t, []string{ProfileSourceName}, r.Sources)
	assert.Equal(t, SourceProfile, r.Source)
	assert.Empty(t, llm.calls())

	jobs := queue.submitted()
	require.Len(t, jobs, 1, "identified exchanges go to extraction")
	assert.Equal(t, "bea", jobs[0].Username)
	assert.Equal(t, r.Reply, jobs[0].Reply)
}

func TestTiered_PersonalUnknownNeverSearches(t *testing.T) {
	t.Parallel()
	store := newProfiles(t)
	withMajor(t, store, "cal", "")
	web := &fakeWeb{pages: testPages()}
	llm := &fakeLLM{reply: "Majors are listed in the catalog."}
	a := newTiered(t, Deps{
		Profiles: store,
		LLM:      llm,
		Index:    missingIndex(),
		Ranker:   fixedRanker{diningURL},
		Fetcher:  web,
	})

	for _, user := range []string{"cal", "nobody-yet"} {
		r := a.Answer(context.Background(), Request{Message: "What's my major?", Username: user})
		assert.Equal(t, UnknownReply, r.Reply, user)
		assert.Equal(t, []string{ProfileSourceName}, r.Sources, user)
	}
	assert.Empty(t, llm.calls())
	assert.Empty(t, web.asked)
}

func TestTiered_AnonymousSkipsPersonal(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{reply: "Check the catalog."}
	queue := &fakeQueue{}
	a := newTiered(t, Deps{
		Profiles:    newProfiles(t),
		LLM:         llm,
		Ranker:      fixedRanker{diningURL},
		Fetcher:     &fakeWeb{pages: testPages()},
		Extractions: queue,
	})

	r := a.Answer(context.Background(), Request{Message: "What's my major?", Username: Anonymous})
	assert.Equal(t, SourceRAG, r.Source)
	assert.Empty(t, queue.submitted(), "anonymous exchanges are not extracted")
}

func TestTiered_StoreOutageDegrades(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{reply: "Ask the registrar."}
	a := newTiered(t, Deps{
		Profiles: unavailableStore{},
		LLM:      llm,
		Ranker:   fixedRanker{diningURL},
		Fetcher:  &fakeWeb{pages: testPages()},
	})

	r := a.Answer(context.Background(), Request{Message: "What's my major?", Username: "dan"})
	assert.Equal(t, SourceRAG, r.Source)
	assert.Equal(t, "Ask the registrar.", r.Reply)
}

func TestTiered_IndexRAG(t *testing.T) {
	t.Parallel()
	web := &fakeWeb{pages: testPages()}
	cache := builtIndex(t, web)
	llm := &fakeLLM{reply: "Concerts and lectures happen every weekend. - Athletics games too"}
	a := newTiered(t, Deps{LLM: llm, Index: cache})

	r := a.Answer(context.Background(), Request{Message: "Which concerts and lectures happen every weekend?"})
	require.Equal(t, SourceRAG, r.Source)
	require.NotEmpty(t, r.Sources)
	assert.Equal(t, eventsURL, r.Sources[0])
	for _, s := range r.Sources {
		assert.Contains(t, []string{diningURL, housingURL, eventsURL}, s)
	}
	assert.Equal(t, "Concerts and lectures happen every weekend.\n- Athletics games too", r.Reply)

	calls := llm.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ragSystemPrompt, calls[0].System)
	assert.Contains(t, calls[0].UserContext, "[Source: "+eventsURL+"]\nCampus events include concerts")
	assert.Equal(t, "Which concerts and lectures happen every weekend?", calls[0].Question)
}

func TestTiered_IndexNotBuiltFallsBackToWeb(t *testing.T) {
	t.Parallel()
	web := &fakeWeb{pages: testPages()}
	llm := &fakeLLM{reply: "Dining hours are 7am to 9pm."}
	a := newTiered(t, Deps{
		LLM:     llm,
		Index:   missingIndex(),
		Ranker:  fixedRanker{diningURL, "https://www.qu.edu/gone/", diningURL},
		Fetcher: web,
	})

	r := a.Answer(context.Background(), Request{Message: "dining hall on weekdays"})
	assert.Equal(t, SourceRAG, r.Source)
	assert.Equal(t, []string{diningURL}, r.Sources)
	require.Len(t, llm.calls(), 1)
	assert.Contains(t, llm.calls()[0].UserContext, "--- From "+diningURL+" ---")
}

func TestTiered_IndexFailureFallsBackToWeb(t *testing.T) {
	t.Parallel()
	web := &fakeWeb{pages: testPages()}
	llm := &fakeLLM{reply: "Dining hours are 7am to 9pm."}
	broken := index.NewCache(func(context.Context) (*index.Handle, error) {
		return nil, errors.New("embedding endpoint unreachable")
	})
	a := newTiered(t, Deps{
		LLM:     llm,
		Index:   broken,
		Ranker:  fixedRanker{diningURL},
		Fetcher: web,
	})

	r := a.Answer(context.Background(), Request{Message: "dining hall on weekdays"})
	assert.Equal(t, SourceRAG, r.Source)
	assert.Equal(t, "Dining hours are 7am to 9pm.", r.Reply)
	assert.Equal(t, []string{diningURL}, r.Sources)
	require.Len(t, llm.calls(), 1)
	assert.Contains(t, llm.calls()[0].UserContext, "--- From "+diningURL+" ---")
}

func TestTiered_NoContextReplies(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{reply: "unused"}

	web := newTiered(t, Deps{
		LLM:     llm,
		Index:   missingIndex(),
		Ranker:  fixedRanker{"https://www.qu.edu/gone/"},
		Fetcher: &fakeWeb{},
	})
	r := web.Answer(context.Background(), Request{Message: "zebra migration patterns"})
	assert.Equal(t, NoWebReply, r.Reply)
	assert.Empty(t, r.Sources)
	assert.Empty(t, llm.calls())
}

func TestTiered_FailuresBecomeFallback(t *testing.T) {
	t.Parallel()
	web := &fakeWeb{pages: testPages()}
	tests := []struct {
		name string
		deps Deps
	}{
		{"no model", Deps{Ranker: fixedRanker{diningURL}, Fetcher: web}},
		{"model error", Deps{LLM: &fakeLLM{err: errors.New("quota")}, Ranker: fixedRanker{diningURL}, Fetcher: web}},
		{"empty completion", Deps{LLM: &fakeLLM{reply: "   "}, Ranker: fixedRanker{diningURL}, Fetcher: web}},
		{"panic", Deps{LLM: &fakeLLM{panics: true}, Ranker: fixedRanker{diningURL}, Fetcher: web}},
		{"index broken and no web", Deps{LLM: &fakeLLM{reply: "x"}, Index: index.NewCache(func(context.Context) (*index.Handle, error) {
			return nil, errors.New("disk on fire")
		})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTiered(t, tt.deps)
			r := a.Answer(context.Background(), Request{Message: "dining hall on weekdays"})
			assert.Equal(t, FallbackReply, r.Reply)
			assert.Equal(t, SourceError, r.Source)
			assert.NotNil(t, r.Sources)
			assert.Empty(t, r.Sources)
		})
	}
}

func TestTiered_FAQFirstDisabled(t *testing.T) {
	t.Parallel()
	table, err := faq.Default()
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.FAQFirst = false
	opts.RAGMode = config.RAGModeWeb
	llm := &fakeLLM{reply: "Bills post in May."}
	a, err := New(opts, Deps{FAQ: table, LLM: llm, Ranker: fixedRanker{diningURL}, Fetcher: &fakeWeb{pages: testPages()}})
	require.NoError(t, err)

	r := a.Answer(context.Background(), Request{Message: "When are bills available?"})
	assert.Equal(t, SourceRAG, r.Source)
	assert.Equal(t, "Bills post in May.", r.Reply)
}

func TestTiered_SanitizesGeneratedText(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{reply: "That damn dining hall opens at 7am."}
	a := newTiered(t, Deps{LLM: llm, Ranker: fixedRanker{diningURL}, Fetcher: &fakeWeb{pages: testPages()}})
	r := a.Answer(context.Background(), Request{Message: "dining hall on weekdays"})
	assert.Equal(t, "That "+textutil.Mask+" dining hall opens at 7am.", r.Reply)
}

func TestNew_UnknownStrategy(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Strategy: "freestyle"}, Deps{})
	require.Error(t, err)
}

func TestChunkContext(t *testing.T) {
	t.Parallel()
	chunks := []index.Chunk{
		{Text: "alpha", SourceURL: "u1"},
		{Text: "beta", SourceURL: "u1"},
		{Text: "gamma", SourceURL: "u2"},
	}

	text, sources := ChunkContext(chunks, 0)
	assert.Equal(t, "[Source: u1]\nalpha\n\n[Source: u1]\nbeta\n\n[Source: u2]\ngamma", text)
	assert.Equal(t, []string{"u1", "u2"}, sources)

	text, sources = ChunkContext(chunks, len("[Source: u1]\nalpha")+5)
	assert.Equal(t, "[Source: u1]\nalpha", text)
	assert.Equal(t, []string{"u1"}, sources, "sources follow the chunks that fit")

	text, sources = ChunkContext(chunks, 8)
	assert.Equal(t, "[Source:", text)
	assert.Equal(t, []string{"u1"}, sources)
}
