package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/aixgo-dev/visionguide/pkg/audio"
	"github.com/aixgo-dev/visionguide/pkg/language"
)

const openAIProvider = "openai-tts"

// OpenAIService synthesizes with the OpenAI speech endpoint. It requests raw
// 24 kHz PCM and converts it to the client format locally, avoiding an MP3
// decoder.
type OpenAIService struct {
	client *openai.Client
	model  openai.SpeechModel
	voices map[language.Language]openai.SpeechVoice
}

// OpenAIOption configures the OpenAI TTS service.
type OpenAIOption func(*openaiOptions)

type openaiOptions struct {
	baseURL    string
	httpClient *http.Client
	model      openai.SpeechModel
	voices     map[language.Language]openai.SpeechVoice
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

// WithOpenAIModel sets the speech model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *openaiOptions) {
		o.model = openai.SpeechModel(model)
	}
}

// WithOpenAIVoice sets the voice used for lang.
func WithOpenAIVoice(lang language.Language, voice string) OpenAIOption {
	return func(o *openaiOptions) {
		o.voices[lang] = openai.SpeechVoice(voice)
	}
}

// NewOpenAI creates an OpenAI TTS service.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	o := openaiOptions{
		model: openai.TTSModel1,
		voices: map[language.Language]openai.SpeechVoice{
			language.English: openai.VoiceAlloy,
			language.Hindi:   openai.VoiceAlloy,
		},
	}
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
		voices: o.voices,
	}
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return openAIProvider
}

// Synthesize converts text to 16 kHz mono WAV.
func (s *OpenAIService) Synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	voice, ok := s.voices[lang]
	if !ok {
		voice = s.voices[language.Baseline]
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, &BackendError{Backend: openAIProvider, Err: fmt.Errorf("read audio: %w", err), Transient: true}
	}
	if len(pcm) == 0 {
		return nil, &BackendError{Backend: openAIProvider, Err: errors.New("empty audio response"), Transient: true}
	}
	// Drop a trailing odd byte from a truncated stream.
	pcm = pcm[:len(pcm)&^1]

	wav, err := audio.PCM16ToOutput(pcm, audio.SampleRate24kHz)
	if err != nil {
		return nil, &BackendError{Backend: openAIProvider, Err: fmt.Errorf("convert audio: %w", err)}
	}
	return wav, nil
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
	return &BackendError{Backend: openAIProvider, Err: err, Transient: true}
}
