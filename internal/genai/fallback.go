package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
)

var tracer = otel.Tracer("github.com/qchat-dev/qchat-go/internal/genai")

// Breaker defaults.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// ErrNoProviders is returned by a FallbackCompleter with an empty chain.
var ErrNoProviders = errors.New("genai: no completion provider configured")

// FallbackOptions configures NewFallbackCompleter.
type FallbackOptions struct {
	Retry RetryConfig
	// Timeout bounds each provider call. Zero means only the caller's
	// deadline applies.
	Timeout time.Duration
	// BreakerFailures consecutive failures open a provider's breaker for
	// BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
}

type link struct {
	completer Completer
	breaker   *gobreaker.CircuitBreaker
}

// FallbackCompleter tries completers in order with retry, circuit breaking
// and provider fallback.
type FallbackCompleter struct {
	chain   []link
	retry   RetryConfig
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewFallbackCompleter chains completers in the given order. Nil entries
// are skipped.
func NewFallbackCompleter(opts FallbackOptions, completers ...Completer) *FallbackCompleter {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = DefaultBreakerCooldown
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	log := opts.Logger.WithModule("genai")

	f := &FallbackCompleter{
		retry:   opts.Retry,
		timeout: opts.Timeout,
		log:     log,
		metrics: opts.Metrics,
	}
	threshold := uint32(opts.BreakerFailures)
	for _, c := range completers {
		if c == nil {
			continue
		}
		name := string(c.Provider())
		f.chain = append(f.chain, link{
			completer: c,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        name,
				MaxRequests: 1,
				Timeout:     opts.BreakerCooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= threshold
				},
				IsSuccessful: func(err error) bool {
					return err == nil || errors.Is(err, context.Canceled) || isRequestError(err)
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.Warn("LLM circuit breaker state change",
						"provider", name,
						"from", from.String(),
						"to", to.String())
				},
			}),
		})
	}
	return f
}

// Complete answers p with the first provider that succeeds.
func (f *FallbackCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	return f.run(ctx, "answer", func(ctx context.Context, c Completer) (string, error) {
		return c.Complete(ctx, p)
	})
}

// CompleteJSON asks for a JSON object. Completers without JSON mode answer
// in plain text.
func (f *FallbackCompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	return f.run(ctx, "extract", func(ctx context.Context, c Completer) (string, error) {
		if jc, ok := c.(JSONCompleter); ok {
			return jc.CompleteJSON(ctx, p)
		}
		return c.Complete(ctx, p)
	})
}

// Provider returns the primary provider, or "" for an empty chain.
func (f *FallbackCompleter) Provider() Provider {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].completer.Provider()
}

// Providers lists the chain in order.
func (f *FallbackCompleter) Providers() []Provider {
	if f == nil {
		return nil
	}
	out := make([]Provider, len(f.chain))
	for i, l := range f.chain {
		out[i] = l.completer.Provider()
	}
	return out
}

func (f *FallbackCompleter) run(ctx context.Context, operation string, call func(context.Context, Completer) (string, error)) (string, error) {
	if f == nil || len(f.chain) == 0 {
		return "", ErrNoProviders
	}

	ctx, span := tracer.Start(ctx, "genai.complete")
	defer span.End()
	span.SetAttributes(attribute.String("genai.operation", operation))

	var lastErr error
	for i, l := range f.chain {
		provider := l.completer.Provider()
		if i > 0 {
			from := f.chain[i-1].completer.Provider()
			f.metrics.RecordLLMFallback(string(from), string(provider))
			f.log.InfoContext(ctx, "Falling back to next LLM provider",
				"from", from,
				"to", provider,
				"operation", operation)
		}

		start := time.Now()
		text, err := f.callWithRetry(ctx, l, call)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			f.metrics.RecordLLM(string(provider), operation, "success", elapsed)
			span.SetAttributes(
				attribute.String("genai.provider", string(provider)),
				attribute.Int("genai.fallbacks", i),
			)
			return text, nil
		}

		lastErr = err
		f.metrics.RecordLLM(string(provider), operation, classifyErrorType(err), elapsed)
		action := ClassifyError(err)
		f.log.WarnContext(ctx, "LLM provider failed",
			"provider", provider,
			"operation", operation,
			"action", action.String(),
			"error", err)

		if ctx.Err() != nil {
			break
		}
		if action == ActionFail && isRequestError(err) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all providers failed")
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
		return "", fmt.Errorf("all providers failed: %w (%v)", ctxErr, lastErr)
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

func (f *FallbackCompleter) callWithRetry(ctx context.Context, l link, call func(context.Context, Completer) (string, error)) (string, error) {
	var text string
	onRetry := func(attempt int, err error) {
		f.log.DebugContext(ctx, "Retrying LLM call",
			"provider", l.completer.Provider(),
			"attempt", attempt,
			"error", err)
	}
	err := WithRetryNotify(ctx, f.retry, onRetry, func() error {
		out, err := l.breaker.Execute(func() (interface{}, error) {
			cctx := ctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			return call(cctx, l.completer)
		})
		if err != nil {
			return err
		}
		text = out.(string)
		return nil
	})
	return text, err
}

// isRequestError reports a malformed request (400 or 422). Auth and
// not-found errors are provider-specific and still fall back.
func isRequestError(err error) bool {
	code := StatusCode(err)
	var llmErr *LLMError
	if code == 0 && errors.As(err, &llmErr) {
		code = llmErr.StatusCode
	}
	return code == http.StatusBadRequest || code == http.StatusUnprocessableEntity
}

// classifyErrorType maps an error to a metric status label.
func classifyErrorType(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	code := StatusCode(err)
	var llmErr *LLMError
	if code == 0 && errors.As(err, &llmErr) {
		code = llmErr.StatusCode
	}
	switch {
	case code == http.StatusTooManyRequests:
		return "rate_limit"
	case code >= 500:
		return "server_error"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth_error"
	case code == http.StatusBadRequest:
		return "invalid_request"
	}

	switch ClassifyError(err) {
	case ActionFallback:
		return "quota_exhausted"
	case ActionRetry:
		return "transient_error"
	default:
		return "error"
	}
}
