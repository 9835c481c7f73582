package stt

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/aixgo-dev/visionguide/pkg/language"
)

const openAIProvider = "openai-whisper"

// OpenAIService transcribes with OpenAI Whisper. The verbose response carries
// the detected language, which is mapped onto the supported set.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures the OpenAI STT service.
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

// WithOpenAIModel sets the STT model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *openaiOptions) {
		o.model = model
	}
}

// NewOpenAI creates an OpenAI STT service using Whisper.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	o := openaiOptions{model: openai.Whisper1}
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

// Transcribe sends the WAV stream to the transcription endpoint.
func (s *OpenAIService) Transcribe(ctx context.Context, wav []byte) (Result, error) {
	if len(wav) == 0 {
		return Result{}, ErrEmptyAudio
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Result{}, wrapOpenAIError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, ErrNoSpeech
	}

	lang, _ := language.FromTag(resp.Language)
	return Result{Text: text, Language: lang}, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{
			Backend:   openAIProvider,
			Status:    apiErr.HTTPStatusCode,
			Err:       err,
			Transient: transientStatus(apiErr.HTTPStatusCode),
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &BackendError{
			Backend:   openAIProvider,
			Status:    reqErr.HTTPStatusCode,
			Err:       err,
			Transient: transientStatus(reqErr.HTTPStatusCode),
		}
	}
	return &BackendError{Backend: openAIProvider, Err: err, Transient: true}
}
