package genai

import (
	"context"
	"fmt"

	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
)

// NewCompleterFromConfig builds the provider chain in LLM_PROVIDERS order,
// skipping providers without credentials. It returns nil when none is usable.
func NewCompleterFromConfig(ctx context.Context, cfg config.LLMConfig, log *logger.Logger, m *metrics.Metrics) *FallbackCompleter {
	if log == nil {
		log = logger.Discard()
	}

	var chain []Completer
	for _, name := range cfg.ConfiguredProviders() {
		c, err := newProvider(ctx, Provider(name), cfg, log)
		if err != nil {
			log.WithError(err).Warn("Skipping LLM provider", "provider", name)
			continue
		}
		chain = append(chain, c)
	}
	if len(chain) == 0 {
		log.Info("No LLM provider configured")
		return nil
	}

	f := NewFallbackCompleter(FallbackOptions{
		Retry:           DefaultRetryConfig(),
		Timeout:         cfg.Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
		Logger:          log,
		Metrics:         m,
	}, chain...)
	log.Info("LLM completer configured",
		"primary", f.Provider(),
		"chain_size", len(chain))
	return f
}

func newProvider(ctx context.Context, p Provider, cfg config.LLMConfig, log *logger.Logger) (Completer, error) {
	switch p {
	case ProviderGemini:
		return NewGeminiCompleter(ctx, GeminiOptions{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Logger:          log,
		})
	case ProviderGroq:
		return NewOpenAICompleter(OpenAIOptions{Provider: p, APIKey: cfg.GroqAPIKey, Model: cfg.GroqModel, MaxOutputTokens: cfg.MaxOutputTokens, Logger: log})
	case ProviderCerebras:
		return NewOpenAICompleter(OpenAIOptions{Provider: p, APIKey: cfg.CerebrasAPIKey, Model: cfg.CerebrasModel, MaxOutputTokens: cfg.MaxOutputTokens, Logger: log})
	case ProviderOpenAI:
		return NewOpenAICompleter(OpenAIOptions{Provider: p, APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, MaxOutputTokens: cfg.MaxOutputTokens, Logger: log})
	case ProviderOllama:
		return NewOpenAICompleter(OpenAIOptions{Provider: p, BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel, MaxOutputTokens: cfg.MaxOutputTokens, Logger: log})
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", p)
	}
}

// NewEmbedderFromConfig builds the Gemini embedder, or returns nil when no
// Gemini key is configured.
func NewEmbedderFromConfig(ctx context.Context, cfg *config.Config) (*GeminiEmbedder, error) {
	if !cfg.HasEmbedder() {
		return nil, nil //nolint:nilnil // embeddings disabled without a key
	}
	return NewGeminiEmbedder(ctx, EmbedderOptions{
		APIKey:            cfg.LLM.GeminiAPIKey,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
}
