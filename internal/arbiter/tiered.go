package arbiter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/qchat-dev/qchat-go/internal/config"
)

// Tiered answers with the first tier that applies: greeting, personal
// profile question, FAQ match, then retrieval-augmented generation.
type Tiered struct {
	*base
}

// Strategy implements Arbiter.
func (t *Tiered) Strategy() string { return config.StrategyTiered }

// Answer implements Arbiter.
func (t *Tiered) Answer(ctx context.Context, req Request) (reply Reply) {
	ctx, finish := t.start(ctx, config.StrategyTiered, req)
	defer finish(&reply)

	if IsGreeting(req.Message) {
		return greetingReply()
	}
	if r, ok := t.personal(ctx, req); ok {
		return r
	}
	if t.opts.FAQFirst {
		if r, ok := t.faq(ctx, req.Message); ok {
			return r
		}
	}

	r, err := t.rag(ctx, req.Message)
	if err != nil {
		t.log.WithError(err).ErrorContext(ctx, "Failed to answer from retrieved context")
		return fallbackReply()
	}
	return r
}

// faq returns the stored answer of the best FAQ match. Stored answers are
// curated and returned exactly as written.
func (b *base) faq(ctx context.Context, message string) (Reply, bool) {
	if b.deps.FAQ == nil {
		return Reply{}, false
	}
	_, span := tracer.Start(ctx, "arbiter.faq")
	defer span.End()

	m, ok := b.deps.FAQ.Match(message)
	if !ok {
		return Reply{}, false
	}
	span.SetAttributes(
		attribute.String("faq.category", m.Entry.Category),
		attribute.Int("faq.score", m.Score),
	)
	b.log.DebugContext(ctx, "FAQ match", "category", m.Entry.Category, "score", m.Score)
	return Reply{
		Reply:    m.Entry.Answer,
		Sources:  []string{},
		Source:   SourceFAQ,
		Category: m.Entry.Category,
		FAQScore: m.Score,
	}, true
}
