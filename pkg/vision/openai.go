package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const (
	openAIProvider = "openai"

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	openAIMaxTokens = 500
)

// OpenAIService describes images with an OpenAI chat model. It is stateless:
// context comes only from the history carried in the prompt.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures the OpenAI vision service.
type OpenAIOption func(*openaiOptions)

type openaiOptions struct {
	baseURL    string
	httpClient *http.Client
	model      string
}

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openaiOptions) {
		o.baseURL = url
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(o *openaiOptions) {
		o.httpClient = client
	}
}

// WithOpenAIModel sets the chat model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *openaiOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// NewOpenAI creates an OpenAI vision service.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	o := openaiOptions{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  o.model,
	}
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return openAIProvider
}

// Describe sends the system instruction, prompt and image in one completion.
func (s *OpenAIService) Describe(ctx context.Context, req Request) (string, error) {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: BuildPrompt(req.Query, req.History, req.Language),
	}}
	if len(req.Image) > 0 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Image),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: openAIMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction(req.Language)},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Forget is a no-op; the service holds no conversation state.
func (s *OpenAIService) Forget(string) {}
