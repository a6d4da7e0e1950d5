package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultEmbeddingModel is the Gemini embedding model.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions uses MRL truncation of the 3072-d output.
	DefaultEmbeddingDimensions = 768
	// DefaultEmbeddingRPM is the embedding API request budget per minute.
	DefaultEmbeddingRPM = 1000
)

var embedRetry = RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
}

// GeminiEmbedder produces embedding vectors with a Gemini embedding model.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	retry      RetryConfig
}

// EmbedderOptions configures NewGeminiEmbedder. BaseURL is for tests.
type EmbedderOptions struct {
	APIKey            string
	Model             string
	Dimensions        int
	RequestsPerMinute int
	BaseURL           string
}

// NewGeminiEmbedder creates an embedder.
func NewGeminiEmbedder(ctx context.Context, opts EmbedderOptions) (*GeminiEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini embedder: api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultEmbeddingModel
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultEmbeddingDimensions
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultEmbeddingRPM
	}

	client, err := newGeminiClient(ctx, opts.APIKey, opts.BaseURL)
	if err != nil {
		return nil, err
	}
	burst := max(opts.RequestsPerMinute/60, 1)
	return &GeminiEmbedder{
		client:     client,
		model:      opts.Model,
		dimensions: opts.Dimensions,
		limiter:    rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst),
		retry:      embedRetry,
	}, nil
}

// Embed returns the embedding of text. It waits on the rate limiter and
// retries transient failures.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty or whitespace-only text cannot be embedded")
	}

	dims := int32(e.dimensions)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	var vec []float32
	err := WithRetry(ctx, e.retry, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), config)
		if err != nil {
			return WrapError(fmt.Errorf("gemini embed content: %w", err), ProviderGemini, 0)
		}
		if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return errors.New("gemini embed content: invalid response: no embedding values")
		}
		vec = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// ModelID identifies the model and dimensionality, e.g.
// "gemini-embedding-001@768". The index manifest records it.
func (e *GeminiEmbedder) ModelID() string {
	return fmt.Sprintf("%s@%d", e.model, e.dimensions)
}

// Dimensions returns the output vector length.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}
