package genai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newEmbedServer answers every request with one embedding. The body carries
// both the single and batch response shapes so either endpoint decodes.
func newEmbedServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGeminiEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv, hits := newEmbedServer(t, `{"embedding":{"values":[0.1,0.2,0.3]},"embeddings":[{"values":[0.1,0.2,0.3]}]}`)

	e, err := NewGeminiEmbedder(context.Background(), EmbedderOptions{
		APIKey:     "test",
		Dimensions: 3,
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder() error = %v", err)
	}

	vec, err := e.Embed(context.Background(), "dining hall hours")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("Embed() = %v", vec)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestGeminiEmbedder_EmptyText(t *testing.T) {
	t.Parallel()
	srv, hits := newEmbedServer(t, `{}`)
	e, err := NewGeminiEmbedder(context.Background(), EmbedderOptions{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder() error = %v", err)
	}
	if _, err := e.Embed(context.Background(), "   \n"); err == nil {
		t.Error("expected error for blank text")
	}
	if hits.Load() != 0 {
		t.Errorf("blank text reached the API %d times", hits.Load())
	}
}

func TestGeminiEmbedder_NoValues(t *testing.T) {
	t.Parallel()
	srv, hits := newEmbedServer(t, `{"embeddings":[]}`)
	e, err := NewGeminiEmbedder(context.Background(), EmbedderOptions{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder() error = %v", err)
	}
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
	if hits.Load() != 1 {
		t.Errorf("invalid response should not be retried, got %d hits", hits.Load())
	}
}

func TestGeminiEmbedder_Defaults(t *testing.T) {
	t.Parallel()
	if _, err := NewGeminiEmbedder(context.Background(), EmbedderOptions{}); err == nil {
		t.Error("expected error without api key")
	}

	e, err := NewGeminiEmbedder(context.Background(), EmbedderOptions{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder() error = %v", err)
	}
	if e.Dimensions() != DefaultEmbeddingDimensions {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if got, want := e.ModelID(), "gemini-embedding-001@768"; got != want {
		t.Errorf("ModelID() = %q, want %q", got, want)
	}

	e, err = NewGeminiEmbedder(context.Background(), EmbedderOptions{APIKey: "k", Model: "text-embedding-004", Dimensions: 256})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder() error = %v", err)
	}
	if got := e.ModelID(); got != "text-embedding-004@256" {
		t.Errorf("ModelID() = %q", got)
	}
}
