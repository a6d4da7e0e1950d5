// Package genai talks to language-model providers for QChat.
//
// Completions go through Gemini (google.golang.org/genai) or any
// OpenAI-compatible endpoint (github.com/openai/openai-go/v3): Groq,
// Cerebras, OpenAI itself and a local Ollama server. FallbackCompleter
// chains them in configured order:
//
//  1. Retry: the same provider is retried with full-jitter backoff.
//  2. Breaker: each provider sits behind a circuit breaker; an open breaker
//     skips straight to the next provider.
//  3. Provider chain: the next provider in LLM_PROVIDERS is tried.
//
// Embeddings for the page index come from GeminiEmbedder.
package genai

import (
	"context"
	"strings"
	"time"
)

// Provider identifies a completion backend.
type Provider string

const (
	// ProviderGemini uses Google's Gemini API through the genai SDK.
	ProviderGemini Provider = "gemini"
	// ProviderGroq is OpenAI-compatible.
	ProviderGroq Provider = "groq"
	// ProviderCerebras is OpenAI-compatible.
	ProviderCerebras Provider = "cerebras"
	// ProviderOpenAI is OpenAI itself.
	ProviderOpenAI Provider = "openai"
	// ProviderOllama is a local Ollama server's /v1 endpoint.
	ProviderOllama Provider = "ollama"
)

// ProviderEndpoint holds base URLs of the hosted OpenAI-compatible
// providers. Ollama's comes from configuration.
var ProviderEndpoint = map[Provider]string{
	ProviderGroq:     "https://api.groq.com/openai/v1/",
	ProviderCerebras: "https://api.cerebras.ai/v1/",
	ProviderOpenAI:   "https://api.openai.com/v1/",
}

// DefaultModels is used when a provider's model is not configured.
var DefaultModels = map[Provider]string{
	ProviderGemini:   "gemini-2.5-flash",
	ProviderGroq:     "llama-3.3-70b-versatile",
	ProviderCerebras: "llama-3.3-70b",
	ProviderOpenAI:   "gpt-4o-mini",
	ProviderOllama:   "llama3.1",
}

// IsOpenAICompatible reports whether the provider is served by OpenAICompleter.
func (p Provider) IsOpenAICompatible() bool {
	if p == ProviderOllama {
		return true
	}
	_, ok := ProviderEndpoint[p]
	return ok
}

func (p Provider) String() string {
	return string(p)
}

// Prompt is one completion request. UserContext carries retrieved material
// and profile facts; it is placed before the question in the user turn.
type Prompt struct {
	System      string
	UserContext string
	Question    string
}

// UserMessage renders the user turn.
func (p Prompt) UserMessage() string {
	ctx := strings.TrimSpace(p.UserContext)
	if ctx == "" {
		return p.Question
	}
	return p.UserContext + "\n\nUser: " + p.Question
}

// Completer produces a text answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Provider() Provider
}

// JSONCompleter additionally asks for a JSON object response, used by
// profile extraction. Providers without a JSON mode fall back to plain text.
type JSONCompleter interface {
	Completer
	CompleteJSON(ctx context.Context, p Prompt) (string, error)
}

// Sampling temperatures.
const (
	AnswerTemperature     = 0.0
	ExtractionTemperature = 0.1
)

// RetryConfig defines retry behavior for provider calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts includes the initial call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}
