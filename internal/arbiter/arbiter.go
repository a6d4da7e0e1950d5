// Package arbiter decides how each chat message is answered.
//
// Two strategies share one interface. Tiered tries a greeting, the user's
// profile, the FAQ table and finally retrieval-augmented generation, in that
// order. Unified hands profile, FAQ and web context to a single completion
// call. Either way a reply is always produced; failures become a fixed
// apology tagged "error".
package arbiter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/ctxutil"
	"github.com/qchat-dev/qchat-go/internal/extractor"
	"github.com/qchat-dev/qchat-go/internal/faq"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/storage"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

var tracer = otel.Tracer("github.com/qchat-dev/qchat-go/internal/arbiter")

// Source tags reported in Reply.Source.
const (
	SourceGreeting = "greeting"
	SourceProfile  = "profile"
	SourceFAQ      = "faq"
	SourceRAG      = "rag"
	SourceError    = "error"
)

// ProfileSourceName is listed in Reply.Sources when an answer came from the
// user's profile.
const ProfileSourceName = "user_profile"

// Anonymous is the username sent by clients that are not signed in.
const Anonymous = "anonymous"

// Fixed replies.
const (
	GreetingReply   = "Hi! I'm QChat, your Quinnipiac University assistant. Ask me anything about classes, dining, housing, athletics, or campus life!"
	UnknownReply    = "I don't have that information about you yet. Feel free to tell me, and I'll remember it for next time!"
	NoChunksReply   = "I don't know, not in the provided resources"
	NoWebReply      = "I couldn't find current info on that. Try asking about dining, events, or housing!"
	FallbackReply   = "Sorry, I'm having trouble right now."
	maxListedSource = 5
)

// Request is one incoming chat message.
type Request struct {
	Message  string
	Username string
	// History is the recent conversation, oldest first. It is passed to
	// profile extraction.
	History []storage.Message
}

// Reply is the answer returned to the client.
type Reply struct {
	Reply    string   `json:"reply"`
	Sources  []string `json:"sources"`
	Source   string   `json:"source"`
	Category string   `json:"category,omitempty"`
	FAQScore int      `json:"faqScore,omitempty"`
}

// Arbiter answers chat messages. Answer never fails.
type Arbiter interface {
	Answer(ctx context.Context, req Request) Reply
	Strategy() string
}

// FAQMatcher is satisfied by *faq.Table.
type FAQMatcher interface {
	Match(message string) (faq.ScoredMatch, bool)
	Relevant(message string, limit, scan int) []faq.Entry
}

// IndexSource yields the loaded document index. It is satisfied by
// *index.Cache.
type IndexSource interface {
	Get(ctx context.Context) (*index.Handle, error)
}

// URLRanker picks candidate pages for a message.
type URLRanker interface {
	Rank(message string, topK int) []string
}

// WebFetcher fetches pages on demand.
type WebFetcher interface {
	FetchAll(ctx context.Context, urls []string, opts fetcher.Options) fetcher.Result
}

// ExtractionQueue accepts exchanges for background profile extraction.
type ExtractionQueue interface {
	Submit(job extractor.Job) bool
}

// Deps are the collaborators an Arbiter uses. Nil members disable the tier
// that needs them.
type Deps struct {
	FAQ         FAQMatcher
	Profiles    profile.Store
	Index       IndexSource
	Ranker      URLRanker
	Fetcher     WebFetcher
	LLM         genai.Completer
	Extractions ExtractionQueue
	Sanitizer   *textutil.Sanitizer
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// Options tune the strategies.
type Options struct {
	Strategy         string
	FAQFirst         bool
	RAGMode          string
	RetrieveK        int
	URLTopK          int
	WebPageLimit     int
	UnifiedPageLimit int
	UnifiedTopK      int
	ContextBudget    int
	FetchTimeout     time.Duration
}

// DefaultOptions returns the tiered index-backed configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:         config.StrategyTiered,
		FAQFirst:         true,
		RAGMode:          config.RAGModeIndex,
		RetrieveK:        index.DefaultRetrieveK,
		URLTopK:          4,
		WebPageLimit:     5000,
		UnifiedPageLimit: 3000,
		UnifiedTopK:      3,
		ContextBudget:    12000,
		FetchTimeout:     config.FetchRequest,
	}
}

// OptionsFromConfig maps application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	o.Strategy = cfg.Arbiter.Strategy
	o.FAQFirst = cfg.Arbiter.FAQFirst
	o.RAGMode = cfg.Arbiter.RAGMode
	o.RetrieveK = cfg.Index.RetrieveK
	o.URLTopK = cfg.Arbiter.URLTopK
	o.WebPageLimit = cfg.Arbiter.WebPageLimit
	o.UnifiedPageLimit = cfg.Arbiter.UnifiedPageLimit
	o.ContextBudget = cfg.Arbiter.ContextBudget
	if cfg.Fetch.Timeout > 0 {
		o.FetchTimeout = cfg.Fetch.Timeout
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	if o.RAGMode == "" {
		o.RAGMode = d.RAGMode
	}
	if o.RetrieveK <= 0 {
		o.RetrieveK = d.RetrieveK
	}
	if o.URLTopK <= 0 {
		o.URLTopK = d.URLTopK
	}
	if o.WebPageLimit <= 0 {
		o.WebPageLimit = d.WebPageLimit
	}
	if o.UnifiedPageLimit <= 0 {
		o.UnifiedPageLimit = d.UnifiedPageLimit
	}
	if o.UnifiedTopK <= 0 {
		o.UnifiedTopK = d.UnifiedTopK
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = d.ContextBudget
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	return o
}

// New builds the Arbiter selected by opts.Strategy.
func New(opts Options, deps Deps) (Arbiter, error) {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = textutil.DefaultSanitizer()
	}
	b := &base{opts: opts, deps: deps, log: deps.Logger.WithModule("arbiter")}

	switch opts.Strategy {
	case config.StrategyTiered:
		return &Tiered{base: b}, nil
	case config.StrategyUnified:
		return &Unified{base: b}, nil
	default:
		return nil, fmt.Errorf("arbiter: unknown strategy %q", opts.Strategy)
	}
}

// base holds what both strategies share.
type base struct {
	opts Options
	deps Deps
	log  *logger.Logger
}

// identified reports whether username names a real user.
func identified(username string) bool {
	return username != "" && username != Anonymous
}

func greetingReply() Reply {
	return Reply{Reply: GreetingReply, Sources: []string{}, Source: SourceGreeting}
}

func fallbackReply() Reply {
	return Reply{Reply: FallbackReply, Sources: []string{}, Source: SourceError}
}

// polish applies the profanity mask and list formatting to generated text.
func (b *base) polish(text string) string {
	return textutil.FormatReply(b.deps.Sanitizer.Sanitize(text))
}

// start opens the per-message span and returns the function that closes it.
// The closer records metrics, recovers panics into the fallback reply and
// hands the exchange to profile extraction.
func (b *base) start(ctx context.Context, strategy string, req Request) (context.Context, func(reply *Reply)) {
	ctx, span := tracer.Start(ctx, "arbiter.Answer", trace.WithAttributes(
		attribute.String("arbiter.strategy", strategy),
		attribute.Bool("arbiter.identified", identified(req.Username)),
	))
	if identified(req.Username) && ctxutil.GetUserID(ctx) == "" {
		ctx = ctxutil.WithUserID(ctx, req.Username)
	}
	began := time.Now()

	return ctx, func(reply *Reply) {
		if r := recover(); r != nil {
			b.log.ErrorContext(ctx, "Recovered from panic while answering", "panic", fmt.Sprint(r))
			*reply = fallbackReply()
		}
		if reply.Sources == nil {
			reply.Sources = []string{}
		}
		span.SetAttributes(
			attribute.String("arbiter.source", reply.Source),
			attribute.Int("arbiter.sources", len(reply.Sources)),
		)
		span.End()

		b.deps.Metrics.RecordChat(strategy, reply.Source, time.Since(began).Seconds())
		if reply.Source == SourceFAQ {
			b.deps.Metrics.RecordFAQMatch(reply.Category)
		}
		b.handOff(ctx, req, *reply)
	}
}

// handOff queues the exchange for profile extraction. Greetings and error
// replies carry nothing to learn from.
func (b *base) handOff(ctx context.Context, req Request, reply Reply) {
	if b.deps.Extractions == nil || !identified(req.Username) {
		return
	}
	if reply.Source == SourceGreeting || reply.Source == SourceError {
		return
	}
	if !b.deps.Extractions.Submit(extractor.Job{
		Username:  req.Username,
		Message:   req.Message,
		Reply:     reply.Reply,
		History:   req.History,
		RequestID: ctxutil.GetRequestID(ctx),
	}) {
		b.log.DebugContext(ctx, "Profile extraction not queued", "username", req.Username)
	}
}
