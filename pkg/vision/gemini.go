package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/aixgo-dev/visionguide/pkg/language"
)

const (
	geminiProvider = "gemini"

	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-1.5-flash"

	geminiClientTimeout = 30 * time.Second
)

// chatSession is one multi-turn conversation with the model.
type chatSession interface {
	Send(ctx context.Context, prompt string, image []byte) (string, error)
}

type chatFactory func(ctx context.Context, lang language.Language) (chatSession, error)

// GeminiService describes images through Gemini chats. Each session id owns
// one chat, created with the system instruction of the language in effect
// when the chat is first needed; later language changes do not alter it.
// Requests without a session id use a throwaway chat.
type GeminiService struct {
	newChat chatFactory

	mu    sync.Mutex
	chats map[string]chatSession
}

// GeminiOption configures the Gemini service.
type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	model   string
	baseURL string
}

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(o *geminiOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithGeminiBaseURL overrides the API endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(o *geminiOptions) {
		o.baseURL = url
	}
}

// NewGemini creates a Gemini service using the Gemini API backend.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	o := geminiOptions{model: DefaultGeminiModel}
	for _, opt := range opts {
		opt(&o)
	}

	// Add timeout for client creation to prevent hanging
	ctx, cancel := context.WithTimeout(ctx, geminiClientTimeout)
	defer cancel()

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions.BaseURL = o.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiService(func(ctx context.Context, lang language.Language) (chatSession, error) {
		chat, err := client.Chats.Create(ctx, o.model, &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemInstruction(lang), genai.RoleUser),
		}, nil)
		if err != nil {
			return nil, err
		}
		return &geminiChat{chat: chat}, nil
	}), nil
}

func newGeminiService(factory chatFactory) *GeminiService {
	return &GeminiService{
		newChat: factory,
		chats:   make(map[string]chatSession),
	}
}

// Name returns the provider identifier.
func (s *GeminiService) Name() string {
	return geminiProvider
}

// Describe sends the prompt and image on the session's chat.
func (s *GeminiService) Describe(ctx context.Context, req Request) (string, error) {
	chat, err := s.chat(ctx, req.SessionID, req.Language)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	text, err := chat.Send(ctx, BuildPrompt(req.Query, req.History, req.Language), req.Image)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return text, nil
}

func (s *GeminiService) chat(ctx context.Context, sessionID string, lang language.Language) (chatSession, error) {
	if sessionID == "" {
		return s.newChat(ctx, lang)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chats[sessionID]; ok {
		return c, nil
	}
	c, err := s.newChat(ctx, lang)
	if err != nil {
		return nil, err
	}
	s.chats[sessionID] = c
	return c, nil
}

// Forget drops the session's chat.
func (s *GeminiService) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, sessionID)
}

// Len returns the number of live chats.
func (s *GeminiService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

type geminiChat struct {
	chat *genai.Chat
}

func (g *geminiChat) Send(ctx context.Context, prompt string, image []byte) (string, error) {
	parts := []genai.Part{*genai.NewPartFromText(prompt)}
	if len(image) > 0 {
		parts = append(parts, *genai.NewPartFromBytes(image, "image/jpeg"))
	}
	resp, err := g.chat.SendMessage(ctx, parts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
