package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// requestLogger logs every request and reports its handling time in the
// X-Process-Time header.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		res := c.Response()
		res.Before(func() {
			res.Header().Set(headerProcessTime, strconv.FormatFloat(time.Since(start).Seconds(), 'f', 3, 64))
		})

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		d := time.Since(start)
		req := c.Request()
		observability.RecordHTTPRequest(req.Method, routeLabel(c, err), strconv.Itoa(res.Status), d)
		s.logger.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"client", c.RealIP(),
			"status", res.Status,
			"duration", d,
		)
		return nil
	}
}

// unmatchedRoute labels requests no route accepted, so that scanned paths
// do not become metric labels.
const unmatchedRoute = "unmatched"

func routeLabel(c echo.Context, err error) string {
	if c.Path() == "" || errors.Is(err, echo.ErrNotFound) || errors.Is(err, echo.ErrMethodNotAllowed) {
		return unmatchedRoute
	}
	return c.Path()
}

// rateLimit applies the sliding-window limiter to POST requests. The key is
// the session id from the query string or form, else the client address.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPost {
			return next(c)
		}

		key := c.QueryParam("session_id")
		if key == "" {
			key = c.FormValue("session_id")
		}
		if key == "" {
			key = "ip:" + c.RealIP()
		}
		if s.limiter.Allow(key) {
			return next(c)
		}

		observability.RecordRateLimited()
		s.logger.Warn("rate limit exceeded", "key", key, "path", c.Request().URL.Path)

		c.Response().Header().Set(headerRateLimitExceeded, "true")
		audio, err := s.assistant.RateLimitAudio(c.Request().Context())
		if err != nil {
			return c.String(http.StatusTooManyRequests, language.Phrase(language.Baseline, language.PhraseRateLimited))
		}
		return c.Blob(http.StatusTooManyRequests, mimeWAV, audio)
	}
}

// handleError is the central error handler. Client errors are answered with
// JSON; anything else becomes a spoken apology with status 500, in the
// language named by the "language" query parameter when there is one.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, map[string]string{"error": msg})
		return
	}

	s.logger.Error("unhandled error",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"error", err,
	)

	h := c.Response().Header()
	h.Set(headerErrorMessage, headerSafe(err.Error()))
	h.Set(headerErrorType, errorType(err))

	lang := language.Baseline
	if q := c.QueryParam("language"); q != "" {
		lang = language.Normalize(q)
	}
	audio, synthErr := s.assistant.Apology(context.WithoutCancel(c.Request().Context()), lang)
	if synthErr != nil {
		_ = c.String(http.StatusInternalServerError, language.Phrase(lang, language.PhraseUnexpectedError))
		return
	}
	_ = c.Blob(http.StatusInternalServerError, mimeWAV, audio)
}

func errorType(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return "HTTPError"
	}
	t := fmt.Sprintf("%T", err)
	t = strings.TrimPrefix(t, "*")
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return t
}
