package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// ErrorAction is what the fallback chain does after a failed call.
type ErrorAction int

const (
	// ActionRetry retries the same provider after a backoff.
	ActionRetry ErrorAction = iota
	// ActionFallback moves on to the next provider.
	ActionFallback
	// ActionFail gives up.
	ActionFail
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError is a provider failure annotated for the retry and fallback
// decisions.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
	Retryable  bool
	// RetryAfter is the server's requested wait, zero when it sent none.
	RetryAfter time.Duration
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return e.Err.Error() + " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return e.Err.Error()
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// messageRule classifies errors that carry no status code by their text.
// Rules are checked in order; the first hit wins.
type messageRule struct {
	action   ErrorAction
	keywords []string
}

var messageRules = []messageRule{
	// Quota exhaustion will not recover within a request.
	{ActionFallback, []string{"quota", "daily limit", "monthly limit", "billing"}},
	{ActionRetry, []string{
		"rate limit", "too many requests", "resource_exhausted", "429",
		"unavailable", "overloaded", "capacity", "internal server error",
		"bad gateway", "gateway timeout", "500", "502", "503", "504",
		"408", "409", "timeout", "deadline", "connection",
	}},
	{ActionFail, []string{
		"400", "invalid", "bad request", "malformed",
		"401", "unauthorized", "unauthenticated",
		"403", "forbidden", "permission denied",
		"404", "not found", "422", "unprocessable",
	}},
}

// ClassifyError decides how to react to err:
//   - rate limits, 5xx, timeouts and network errors retry
//   - quota exhaustion and open breakers fall back to the next provider
//   - other 4xx errors and cancellation fail
//
// Unrecognized errors retry.
func ClassifyError(err error) ErrorAction {
	switch {
	case err == nil:
		return ActionFail
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ActionFallback
	case errors.Is(err, context.Canceled):
		return ActionFail
	case errors.Is(err, context.DeadlineExceeded):
		return ActionRetry
	}

	if code := statusOf(err); code > 0 {
		return classifyStatusCode(code)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if containsAny(msg, rule.keywords...) {
			return rule.action
		}
	}
	return ActionRetry
}

func classifyStatusCode(code int) ErrorAction {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code >= 500 && code < 600:
		return ActionRetry
	case code >= 400 && code < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// ParseRetryAfter reads the server's requested wait from response headers:
// retry-after-ms, then retry-after (seconds or HTTP date), then the
// x-ratelimit-reset-tokens hint sent by Groq and Cerebras. It returns 0 when
// none is usable.
func ParseRetryAfter(headers http.Header) time.Duration {
	if ms, err := strconv.Atoi(headers.Get("retry-after-ms")); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if v := headers.Get("retry-after"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	if d, err := time.ParseDuration(headers.Get("x-ratelimit-reset-tokens")); err == nil && d > 0 {
		return d
	}
	return 0
}

// ShouldFallback reports whether err warrants trying another provider.
func ShouldFallback(err error) bool {
	return ClassifyError(err) == ActionFallback
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ActionRetry
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	return ClassifyError(err) == ActionFail
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// StatusCode extracts the HTTP status from SDK errors, or 0.
func StatusCode(err error) int {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code
	}
	return 0
}

// statusOf prefers an explicit LLMError status over the SDK error's.
func statusOf(err error) int {
	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return llmErr.StatusCode
	}
	return StatusCode(err)
}

// retryAfterOf returns the wait requested by the server for err, if any.
func retryAfterOf(err error) time.Duration {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return 0
}

// WrapError annotates err with its provider and status. A zero statusCode
// is filled from the SDK error, and an OpenAI-compatible response's
// Retry-After headers are captured.
func WrapError(err error, provider Provider, statusCode int) error {
	if err == nil {
		return nil
	}
	if statusCode == 0 {
		statusCode = StatusCode(err)
	}
	wrapped := &LLMError{
		Err:        err,
		StatusCode: statusCode,
		Provider:   provider,
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) && oaiErr.Response != nil {
		wrapped.RetryAfter = ParseRetryAfter(oaiErr.Response.Header)
	}
	wrapped.Retryable = ClassifyError(wrapped) == ActionRetry
	return wrapped
}
