package genai

import (
	"context"
	"testing"

	"github.com/qchat-dev/qchat-go/internal/config"
)

func TestNewCompleterFromConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()
		cfg := config.LLMConfig{Providers: []string{"gemini", "groq"}}
		if f := NewCompleterFromConfig(ctx, cfg, nil, nil); f != nil {
			t.Errorf("expected nil completer, got chain %v", f.Providers())
		}
	})

	t.Run("order follows providers list", func(t *testing.T) {
		t.Parallel()
		cfg := config.LLMConfig{
			Providers:      []string{"ollama", "groq", "cerebras"},
			GroqAPIKey:     "g",
			CerebrasAPIKey: "c",
			OllamaURL:      "http://localhost:11434",
		}
		f := NewCompleterFromConfig(ctx, cfg, nil, nil)
		if f == nil {
			t.Fatal("expected completer")
		}
		got := f.Providers()
		want := []Provider{ProviderOllama, ProviderGroq, ProviderCerebras}
		if len(got) != len(want) {
			t.Fatalf("Providers() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Providers()[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("gemini", func(t *testing.T) {
		t.Parallel()
		cfg := config.LLMConfig{Providers: []string{"gemini"}, GeminiAPIKey: "k"}
		f := NewCompleterFromConfig(ctx, cfg, nil, nil)
		if f == nil || f.Provider() != ProviderGemini {
			t.Fatal("expected gemini completer")
		}
	})
}

func TestNewProvider_Unknown(t *testing.T) {
	t.Parallel()
	if _, err := newProvider(context.Background(), Provider("anthropic"), config.LLMConfig{}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewEmbedderFromConfig(t *testing.T) {
	t.Parallel()
	e, err := NewEmbedderFromConfig(context.Background(), &config.Config{})
	if err != nil || e != nil {
		t.Errorf("without key = %v, %v; want nil, nil", e, err)
	}

	cfg := &config.Config{
		LLM:       config.LLMConfig{GeminiAPIKey: "k"},
		Embedding: config.EmbeddingConfig{Model: "gemini-embedding-001", Dimensions: 512},
	}
	e, err = NewEmbedderFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewEmbedderFromConfig() error = %v", err)
	}
	if e.ModelID() != "gemini-embedding-001@512" {
		t.Errorf("ModelID() = %q", e.ModelID())
	}
}
