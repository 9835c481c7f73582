package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aixgo-dev/visionguide/internal/pipeline"
	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

const (
	headerResponseText      = "X-Response-Text"
	headerDetectedLanguage  = "X-Detected-Language"
	headerProcessTime       = "X-Process-Time"
	headerRateLimitExceeded = "X-Rate-Limit-Exceeded"
	headerErrorMessage      = "X-Error-Message"
	headerErrorType         = "X-Error-Type"

	mimeWAV = "audio/wav"
)

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": "VisionGuide",
		"version": s.cfg.Version,
		"status":  "running",
	})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	sessionID := strings.TrimSpace(c.FormValue("session_id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	mode, err := pipeline.ParseMode(c.FormValue("mode"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	imageHeader, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image is required")
	}
	image, err := imageUpload(s.cfg.MaxImageBytes).read(imageHeader)
	if err != nil {
		return err
	}

	var audio []byte
	audioHeader, err := c.FormFile("audio")
	switch {
	case err == nil:
		audio, err = audioUpload(s.cfg.MaxAudioBytes).read(audioHeader)
		if err != nil {
			return err
		}
	case !errors.Is(err, http.ErrMissingFile):
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read audio")
	}

	ctx := c.Request().Context()
	res, err := s.assistant.Analyze(ctx, pipeline.AnalyzeRequest{
		SessionID: sessionID,
		Mode:      mode,
		Image:     image,
		Audio:     audio,
	})
	if err != nil {
		return s.analyzeFailed(c, sessionID, err)
	}

	h := c.Response().Header()
	h.Set(headerResponseText, headerSafe(res.Text))
	h.Set(headerDetectedLanguage, string(res.Language))
	h.Set(echo.HeaderContentDisposition, "attachment; filename=response.wav")
	return c.Blob(http.StatusOK, mimeWAV, res.Audio)
}

// analyzeFailed answers a failed turn with spoken error audio in the session
// language, or JSON when even that cannot be synthesized.
func (s *Server) analyzeFailed(c echo.Context, sessionID string, err error) error {
	s.logger.Error("analyze failed", "session_id", sessionID, "error", err)

	ctx := c.Request().Context()
	msg := "the request could not be processed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "the request timed out"
	}
	lang := language.Baseline
	if sess, ok := s.assistant.Session(ctx, sessionID); ok {
		lang = sess.Language()
	}

	audio, synthErr := s.assistant.ErrorAudio(context.WithoutCancel(ctx), msg, lang)
	if synthErr != nil {
		s.logger.Warn("error audio synthesis failed", "error", synthErr)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": msg})
	}
	c.Response().Header().Set(headerErrorMessage, headerSafe(msg))
	return c.Blob(http.StatusInternalServerError, mimeWAV, audio)
}

func (s *Server) handleReset(c echo.Context) error {
	sessionID := strings.TrimSpace(c.FormValue("session_id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	s.assistant.Reset(c.Request().Context(), sessionID)
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "success",
		"session_id": sessionID,
		"message":    "Session reset successfully",
	})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, ok := s.assistant.Session(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"services": s.cfg.Services,
	})
}

func (s *Server) handleReady(c echo.Context) error {
	resp := s.health.Check(c.Request().Context())
	code := http.StatusOK
	if resp.Status == observability.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
