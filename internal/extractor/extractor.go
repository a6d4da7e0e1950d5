// Package extractor learns profile facts from chat exchanges. A language
// model proposes structured updates, which are strictly decoded, cleaned and
// applied to the profile store in the background.
package extractor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

var tracer = otel.Tracer("github.com/qchat-dev/qchat-go/internal/extractor")

// Extractor asks a model for profile facts in one exchange.
type Extractor struct {
	llm genai.JSONCompleter
	log *logger.Logger
}

// New creates an Extractor.
func New(llm genai.JSONCompleter, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{llm: llm, log: log.WithModule("extractor")}
}

// Extract returns the facts found in the exchange. ok is false when nothing
// was found or the model reply could not be used.
func (e *Extractor) Extract(ctx context.Context, userMsg, botReply string, history []storage.Message, current *profile.Profile) (x Extraction, ok bool) {
	x, err := e.extract(ctx, userMsg, botReply, history, current)
	if err != nil {
		e.log.WithError(err).DebugContext(ctx, "Profile extraction produced nothing")
		return Extraction{}, false
	}
	return x, !x.Empty()
}

func (e *Extractor) extract(ctx context.Context, userMsg, botReply string, history []storage.Message, current *profile.Profile) (Extraction, error) {
	ctx, span := tracer.Start(ctx, "extractor.Extract")
	defer span.End()

	if e.llm == nil {
		return Extraction{}, fmt.Errorf("%w: no model configured", domerrors.ErrExtractionFailed)
	}

	reply, err := e.llm.CompleteJSON(ctx, genai.Prompt{
		System:   systemPrompt,
		Question: userPrompt(buildConversation(userMsg, botReply, history, current)),
	})
	if err != nil {
		span.RecordError(err)
		return Extraction{}, fmt.Errorf("%w: %w", domerrors.ErrExtractionFailed, err)
	}

	x, err := Parse(reply)
	if err != nil {
		span.RecordError(err)
		e.log.WithError(err).WithField("raw_length", len(reply)).WarnContext(ctx, "Discarded malformed extraction reply")
		return Extraction{}, err
	}
	span.SetAttributes(attribute.Bool("extractor.empty", x.Empty()))
	return x, nil
}
