package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/qchat-dev/qchat-go/internal/logger"
)

// ollamaAPIKey is sent to Ollama, which ignores it.
const ollamaAPIKey = "ollama"

// OpenAICompleter answers prompts through an OpenAI-compatible chat
// completions endpoint.
type OpenAICompleter struct {
	client          openai.Client
	model           string
	provider        Provider
	maxOutputTokens int64
	log             *logger.Logger
}

// OpenAIOptions configures NewOpenAICompleter. BaseURL overrides the
// provider endpoint and is required for Ollama.
type OpenAIOptions struct {
	Provider        Provider
	APIKey          string
	Model           string
	BaseURL         string
	MaxOutputTokens int
	Logger          *logger.Logger
}

// NewOpenAICompleter creates a completer for groq, cerebras, openai or ollama.
func NewOpenAICompleter(opts OpenAIOptions) (*OpenAICompleter, error) {
	if !opts.Provider.IsOpenAICompatible() {
		return nil, fmt.Errorf("unsupported OpenAI-compatible provider: %s", opts.Provider)
	}

	baseURL := opts.BaseURL
	switch {
	case opts.Provider == ProviderOllama:
		if baseURL == "" {
			return nil, errors.New("ollama: base url is required")
		}
		baseURL = OllamaBaseURL(baseURL)
		if opts.APIKey == "" {
			opts.APIKey = ollamaAPIKey
		}
	case baseURL == "":
		baseURL = ProviderEndpoint[opts.Provider]
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", opts.Provider)
	}
	if opts.Model == "" {
		opts.Model = DefaultModels[opts.Provider]
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0), // FallbackCompleter owns retries
	)
	return &OpenAICompleter{
		client:          client,
		model:           opts.Model,
		provider:        opts.Provider,
		maxOutputTokens: int64(opts.MaxOutputTokens),
		log:             opts.Logger.WithModule("genai"),
	}, nil
}

// OllamaBaseURL turns an Ollama server URL into its OpenAI-compatible base.
func OllamaBaseURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u + "/"
}

// Complete returns the model's answer at temperature 0.
func (c *OpenAICompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	return c.chat(ctx, p, AnswerTemperature, false)
}

// CompleteJSON requests a JSON object response at the extraction temperature.
func (c *OpenAICompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	return c.chat(ctx, p, ExtractionTemperature, true)
}

func (c *OpenAICompleter) chat(ctx context.Context, p Prompt, temperature float64, jsonMode bool) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.UserMessage()))

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if c.maxOutputTokens > 0 {
		params.MaxTokens = openai.Int(c.maxOutputTokens)
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", WrapError(fmt.Errorf("%s chat completion: %w", c.provider, err), c.provider, 0)
	}
	if len(resp.Choices) == 0 {
		return "", WrapError(fmt.Errorf("%s: empty response", c.provider), c.provider, 0)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", WrapError(fmt.Errorf("%s: empty response", c.provider), c.provider, 0)
	}

	if resp.Usage.TotalTokens > 0 {
		c.log.DebugContext(ctx, "Chat completion",
			"provider", c.provider,
			"model", c.model,
			"input_tokens", resp.Usage.PromptTokens,
			"output_tokens", resp.Usage.CompletionTokens,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return text, nil
}

// Provider returns the configured provider.
func (c *OpenAICompleter) Provider() Provider {
	return c.provider
}
