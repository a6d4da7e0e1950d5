package arbiter

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/sliceutil"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

var (
	errNoLLM = errors.New("arbiter: no completion provider configured")
	errNoWeb = errors.New("arbiter: no web fetcher configured")
)

// rag answers from retrieved context. Index mode falls back to fetching
// pages on demand when the index cannot serve the query: it is not built,
// was built with another embedding model, or retrieval itself failed.
func (b *base) rag(ctx context.Context, message string) (Reply, error) {
	ctx, span := tracer.Start(ctx, "arbiter.rag")
	defer span.End()
	span.SetAttributes(attribute.String("rag.mode", b.opts.RAGMode))

	if b.deps.LLM == nil {
		return Reply{}, errNoLLM
	}

	if b.opts.RAGMode == config.RAGModeIndex && b.deps.Index != nil {
		chunks, err := b.retrieve(ctx, message)
		if err == nil {
			return b.ragIndex(ctx, message, chunks)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{}, ctxErr
		}
		if errors.Is(err, domerrors.ErrIndexNotBuilt) || errors.Is(err, domerrors.ErrModelMismatch) {
			b.log.WithError(err).WarnContext(ctx, "Index unavailable, answering from fetched pages")
		} else {
			span.RecordError(err)
			b.log.WithError(err).ErrorContext(ctx, "Index retrieval failed, answering from fetched pages")
		}
		span.SetAttributes(attribute.Bool("rag.degraded", true))
	}

	r, err := b.ragWeb(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "web answer failed")
	}
	return r, err
}

func (b *base) retrieve(ctx context.Context, message string) ([]index.Chunk, error) {
	h, err := b.deps.Index.Get(ctx)
	if err != nil {
		return nil, err
	}
	return h.Retrieve(ctx, message, b.opts.RetrieveK)
}

func (b *base) ragIndex(ctx context.Context, message string, chunks []index.Chunk) (Reply, error) {
	if len(chunks) == 0 {
		return Reply{Reply: NoChunksReply, Sources: []string{}, Source: SourceRAG}, nil
	}

	prompt, sources := ChunkContext(chunks, b.opts.ContextBudget)
	answer, err := b.complete(ctx, ragSystemPrompt, prompt, message)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Reply: b.polish(answer), Sources: sources, Source: SourceRAG}, nil
}

func (b *base) ragWeb(ctx context.Context, message string) (Reply, error) {
	if b.deps.Ranker == nil || b.deps.Fetcher == nil {
		return Reply{}, errNoWeb
	}
	urls := b.deps.Ranker.Rank(message, b.opts.URLTopK)
	res := b.deps.Fetcher.FetchAll(ctx, urls, fetcher.Options{
		PageLimit: b.opts.WebPageLimit,
		Timeout:   b.opts.FetchTimeout,
	})
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if strings.TrimSpace(res.Context) == "" {
		return Reply{Reply: NoWebReply, Sources: []string{}, Source: SourceRAG}, nil
	}

	prompt := textutil.Truncate(strings.TrimSpace(res.Context), b.opts.ContextBudget)
	answer, err := b.complete(ctx, ragSystemPrompt, prompt, message)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Reply:   b.polish(answer),
		Sources: sliceutil.Unique(res.Sources, maxListedSource),
		Source:  SourceRAG,
	}, nil
}

// ChunkContext joins chunks as "[Source: url]" blocks separated by blank
// lines, stopping before the text would exceed budget bytes. A first chunk
// larger than the budget is truncated. Sources lists the URLs of the chunks
// that made it in, deduplicated in order, at most five.
func ChunkContext(chunks []index.Chunk, budget int) (text string, sources []string) {
	var b strings.Builder
	urls := make([]string, 0, len(chunks))
	for _, c := range chunks {
		block := "[Source: " + c.SourceURL + "]\n" + c.Text
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		if budget > 0 && b.Len()+len(sep)+len(block) > budget {
			if b.Len() == 0 {
				b.WriteString(textutil.Truncate(block, budget))
				urls = append(urls, c.SourceURL)
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(block)
		urls = append(urls, c.SourceURL)
	}
	return b.String(), sliceutil.Unique(urls, maxListedSource)
}

func (b *base) complete(ctx context.Context, system, userContext, question string) (string, error) {
	answer, err := b.deps.LLM.Complete(ctx, genai.Prompt{
		System:      system,
		UserContext: userContext,
		Question:    question,
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("arbiter: empty completion")
	}
	return answer, nil
}
