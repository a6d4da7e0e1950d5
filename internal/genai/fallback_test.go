package genai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// scriptedCompleter returns errs in order, then reply.
type scriptedCompleter struct {
	provider Provider
	reply    string
	errs     []error

	mu        sync.Mutex
	calls     int
	jsonCalls int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.reply, nil
}

func (s *scriptedCompleter) Provider() Provider { return s.provider }

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type jsonCompleter struct {
	scriptedCompleter
}

func (j *jsonCompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	j.mu.Lock()
	j.jsonCalls++
	j.mu.Unlock()
	return `{"ok":true}`, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestFallbackCompleter_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &scriptedCompleter{provider: ProviderGemini, reply: "from gemini"}
	secondary := &scriptedCompleter{provider: ProviderGroq, reply: "from groq"}

	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary, secondary)
	got, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "from gemini" {
		t.Errorf("Complete() = %q", got)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary called %d times", secondary.Calls())
	}
}

func TestFallbackCompleter_RetriesTransientError(t *testing.T) {
	t.Parallel()
	primary := &scriptedCompleter{
		provider: ProviderGemini,
		reply:    "ok",
		errs:     []error{errors.New("service unavailable")},
	}

	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary)
	got, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "ok" || primary.Calls() != 2 {
		t.Errorf("got %q after %d calls", got, primary.Calls())
	}
}

func TestFallbackCompleter_FallsBack(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		primaryErrs  []error
		primaryCalls int
	}{
		{"quota exhausted", []error{errors.New("daily quota exceeded")}, 1},
		{"transient errors exhaust retries", []error{errors.New("503 unavailable"), errors.New("503 unavailable")}, 2},
		{"auth error is provider-specific", []error{&LLMError{Err: errors.New("bad key"), StatusCode: http.StatusUnauthorized}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &scriptedCompleter{provider: ProviderGemini, reply: "unused", errs: tt.primaryErrs}
			secondary := &scriptedCompleter{provider: ProviderGroq, reply: "from groq"}

			f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary, secondary)
			got, err := f.Complete(context.Background(), Prompt{Question: "q"})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got != "from groq" {
				t.Errorf("Complete() = %q", got)
			}
			if primary.Calls() != tt.primaryCalls {
				t.Errorf("primary calls = %d, want %d", primary.Calls(), tt.primaryCalls)
			}
		})
	}
}

func TestFallbackCompleter_BadRequestStopsChain(t *testing.T) {
	t.Parallel()
	primary := &scriptedCompleter{
		provider: ProviderGemini,
		errs:     []error{&LLMError{Err: errors.New("malformed"), StatusCode: http.StatusBadRequest}},
	}
	secondary := &scriptedCompleter{provider: ProviderGroq, reply: "from groq"}

	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary, secondary)
	_, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "all providers failed") {
		t.Errorf("error = %v", err)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary called %d times", secondary.Calls())
	}
}

func TestFallbackCompleter_AllFail(t *testing.T) {
	t.Parallel()
	primary := &scriptedCompleter{provider: ProviderGemini, errs: []error{errors.New("quota exceeded")}}
	secondary := &scriptedCompleter{provider: ProviderGroq, errs: []error{errors.New("monthly limit reached")}}

	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary, secondary)
	_, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err == nil || !strings.Contains(err.Error(), "monthly limit") {
		t.Errorf("error = %v, want last provider's error", err)
	}
}

func TestFallbackCompleter_BreakerOpensAndSkips(t *testing.T) {
	t.Parallel()
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("quota exceeded")
	}
	primary := &scriptedCompleter{provider: ProviderGemini, errs: errs}
	secondary := &scriptedCompleter{provider: ProviderGroq, reply: "from groq"}

	f := NewFallbackCompleter(FallbackOptions{
		Retry:           fastRetry(),
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, primary, secondary)

	for range 2 {
		if _, err := f.Complete(context.Background(), Prompt{Question: "q"}); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}
	if primary.Calls() != 2 {
		t.Fatalf("primary calls = %d, want 2", primary.Calls())
	}
	if f.chain[0].breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", f.chain[0].breaker.State())
	}

	got, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err != nil || got != "from groq" {
		t.Fatalf("Complete() = %q, %v", got, err)
	}
	if primary.Calls() != 2 {
		t.Errorf("open breaker still called primary: %d calls", primary.Calls())
	}
}

func TestFallbackCompleter_BadRequestDoesNotTripBreaker(t *testing.T) {
	t.Parallel()
	bad := &LLMError{Err: errors.New("malformed"), StatusCode: http.StatusBadRequest}
	primary := &scriptedCompleter{provider: ProviderGemini, errs: []error{bad, bad, bad}}

	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry(), BreakerFailures: 1}, primary)
	for range 3 {
		_, _ = f.Complete(context.Background(), Prompt{Question: "q"})
	}
	if f.chain[0].breaker.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", f.chain[0].breaker.State())
	}
}

func TestFallbackCompleter_Timeout(t *testing.T) {
	t.Parallel()
	slow := &blockingCompleter{provider: ProviderOllama}
	fast := &scriptedCompleter{provider: ProviderGroq, reply: "fast"}

	f := NewFallbackCompleter(FallbackOptions{
		Retry:   RetryConfig{MaxAttempts: 1},
		Timeout: 20 * time.Millisecond,
	}, slow, fast)

	got, err := f.Complete(context.Background(), Prompt{Question: "q"})
	if err != nil || got != "fast" {
		t.Fatalf("Complete() = %q, %v", got, err)
	}
}

func TestFallbackCompleter_CanceledContext(t *testing.T) {
	t.Parallel()
	primary := &scriptedCompleter{provider: ProviderGemini, reply: "ok"}
	f := NewFallbackCompleter(FallbackOptions{Retry: fastRetry()}, primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Complete(ctx, Prompt{Question: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestFallbackCompleter_CompleteJSON(t *testing.T) {
	t.Parallel()
	plain := &scriptedCompleter{provider: ProviderOllama, reply: `{"plain":true}`}
	got, err := NewFallbackCompleter(FallbackOptions{}, plain).CompleteJSON(context.Background(), Prompt{Question: "q"})
	if err != nil || got != `{"plain":true}` {
		t.Errorf("CompleteJSON() plain = %q, %v", got, err)
	}

	jc := &jsonCompleter{scriptedCompleter{provider: ProviderGemini}}
	got, err = NewFallbackCompleter(FallbackOptions{}, jc).CompleteJSON(context.Background(), Prompt{Question: "q"})
	if err != nil || got != `{"ok":true}` {
		t.Errorf("CompleteJSON() json = %q, %v", got, err)
	}
	if jc.jsonCalls != 1 || jc.calls != 0 {
		t.Errorf("json calls = %d, plain calls = %d", jc.jsonCalls, jc.calls)
	}
}

func TestFallbackCompleter_Empty(t *testing.T) {
	t.Parallel()
	f := NewFallbackCompleter(FallbackOptions{}, nil)
	if _, err := f.Complete(context.Background(), Prompt{}); !errors.Is(err, ErrNoProviders) {
		t.Errorf("error = %v, want ErrNoProviders", err)
	}
	if f.Provider() != "" || len(f.Providers()) != 0 {
		t.Error("empty chain should report no providers")
	}

	var nilF *FallbackCompleter
	if _, err := nilF.Complete(context.Background(), Prompt{}); !errors.Is(err, ErrNoProviders) {
		t.Errorf("nil completer error = %v", err)
	}
}

func TestFallbackCompleter_Providers(t *testing.T) {
	t.Parallel()
	f := NewFallbackCompleter(FallbackOptions{},
		&scriptedCompleter{provider: ProviderGroq},
		&scriptedCompleter{provider: ProviderGemini},
	)
	got := f.Providers()
	if len(got) != 2 || got[0] != ProviderGroq || got[1] != ProviderGemini {
		t.Errorf("Providers() = %v", got)
	}
	if f.Provider() != ProviderGroq {
		t.Errorf("Provider() = %v", f.Provider())
	}
}

func TestClassifyErrorType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{gobreaker.ErrOpenState, "breaker_open"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{&LLMError{Err: errors.New("x"), StatusCode: http.StatusTooManyRequests}, "rate_limit"},
		{&LLMError{Err: errors.New("x"), StatusCode: http.StatusBadGateway}, "server_error"},
		{&LLMError{Err: errors.New("x"), StatusCode: http.StatusForbidden}, "auth_error"},
		{&LLMError{Err: errors.New("x"), StatusCode: http.StatusBadRequest}, "invalid_request"},
		{errors.New("quota exceeded"), "quota_exhausted"},
		{errors.New("connection reset"), "transient_error"},
		{errors.New("invalid api key"), "error"},
	}
	for _, tt := range tests {
		if got := classifyErrorType(tt.err); got != tt.want {
			t.Errorf("classifyErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type blockingCompleter struct {
	provider Provider
}

func (b *blockingCompleter) Complete(ctx context.Context, _ Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *blockingCompleter) Provider() Provider { return b.provider }
