// Package server exposes the assistant over HTTP for the camera client.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aixgo-dev/visionguide/internal/pipeline"
	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
	"github.com/aixgo-dev/visionguide/pkg/session"
)

// APIPrefix is the versioned mount point used by the client firmware. Every
// route is also served at the root.
const APIPrefix = "/api/v1"

// Assistant is the request pipeline as seen by the HTTP layer.
type Assistant interface {
	Analyze(ctx context.Context, req pipeline.AnalyzeRequest) (*pipeline.AnalyzeResult, error)
	Reset(ctx context.Context, id string)
	Session(ctx context.Context, id string) (*session.Session, bool)
	ErrorAudio(ctx context.Context, msg string, lang language.Language) ([]byte, error)
	Apology(ctx context.Context, lang language.Language) ([]byte, error)
	RateLimitAudio(ctx context.Context) ([]byte, error)
}

// Services names the backends configured for each adapter, in rank order.
type Services struct {
	STT     []string `json:"stt"`
	Vision  []string `json:"vision"`
	TTS     []string `json:"tts"`
	Session string   `json:"session"`
}

// Config holds server settings.
type Config struct {
	Version       string
	MaxImageBytes int64
	MaxAudioBytes int64
	Services      Services
}

// Server is the HTTP front end.
type Server struct {
	echo      *echo.Echo
	assistant Assistant
	limiter   *RateLimiter
	health    *observability.HealthChecker
	cfg       Config
	logger    *slog.Logger
}

// New builds the echo instance with middleware and routes.
func New(cfg Config, assistant Assistant, limiter *RateLimiter, health *observability.HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimitRequests, DefaultRateLimitWindow)
	}
	if health == nil {
		health = observability.NewHealthChecker(cfg.Version)
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 << 20
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = 10 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		assistant: assistant,
		limiter:   limiter,
		health:    health,
		cfg:       cfg,
		logger:    logger,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
		ExposeHeaders: []string{
			headerResponseText,
			headerDetectedLanguage,
			headerProcessTime,
			headerRateLimitExceeded,
			headerErrorMessage,
			headerErrorType,
		},
	}))
	e.Use(s.rateLimit)

	s.register(e)
	s.register(e.Group(APIPrefix))
	return s
}

type router interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

func (s *Server) register(r router) {
	r.GET("/", s.handleRoot)
	r.POST("/analyze", s.handleAnalyze)
	r.POST("/session/reset", s.handleReset)
	r.GET("/session/:id", s.handleGetSession)
	r.GET("/health", s.handleHealth)
	r.GET("/health/ready", s.handleReady)
	r.GET("/metrics", echo.WrapHandler(observability.MetricsHandler()))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
