package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/qchat-dev/qchat-go/internal/logger"
)

// GeminiCompleter answers prompts with a Gemini model.
type GeminiCompleter struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
	log             *logger.Logger
}

// GeminiOptions configures NewGeminiCompleter. BaseURL is for tests.
type GeminiOptions struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	BaseURL         string
	Logger          *logger.Logger
}

// NewGeminiCompleter creates a completer backed by the Gemini API.
func NewGeminiCompleter(ctx context.Context, opts GeminiOptions) (*GeminiCompleter, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModels[ProviderGemini]
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	client, err := newGeminiClient(ctx, opts.APIKey, opts.BaseURL)
	if err != nil {
		return nil, err
	}
	return &GeminiCompleter{
		client:          client,
		model:           opts.Model,
		maxOutputTokens: int32(opts.MaxOutputTokens),
		log:             opts.Logger.WithModule("genai"),
	}, nil
}

func newGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// Complete returns the model's answer at temperature 0.
func (g *GeminiCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	return g.generate(ctx, p, AnswerTemperature, "")
}

// CompleteJSON asks for an application/json response at the extraction
// temperature.
func (g *GeminiCompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	return g.generate(ctx, p, ExtractionTemperature, "application/json")
}

func (g *GeminiCompleter) generate(ctx context.Context, p Prompt, temperature float32, mime string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		ResponseMIMEType: mime,
	}
	if g.maxOutputTokens > 0 {
		config.MaxOutputTokens = g.maxOutputTokens
	}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.UserMessage()), config)
	if err != nil {
		return "", WrapError(fmt.Errorf("gemini generate content: %w", err), ProviderGemini, 0)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", WrapError(errors.New("gemini: empty response"), ProviderGemini, 0)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			out.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", WrapError(errors.New("gemini: empty response"), ProviderGemini, 0)
	}

	if resp.UsageMetadata != nil {
		g.log.DebugContext(ctx, "Gemini completion",
			"model", g.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return text, nil
}

// Provider returns ProviderGemini.
func (g *GeminiCompleter) Provider() Provider {
	return ProviderGemini
}
