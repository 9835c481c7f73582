package vision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// Chain asks its backends in rank order and returns the first non-empty
// description. With no backends it answers with the "service not available"
// phrase; when all backends fail it answers with the "couldn't analyze"
// phrase.
type Chain struct {
	backends []Backend
	timeout  time.Duration
	logger   *slog.Logger
}

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 30 * time.Second

// NewChain creates a chain over the ranked backends.
func NewChain(logger *slog.Logger, backends ...Backend) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{backends: backends, timeout: DefaultTimeout, logger: logger}
}

// WithTimeout sets the deadline of each backend call. A backend that runs
// out of time is skipped like any other failure. Zero leaves calls bounded
// only by the caller's context.
func (c *Chain) WithTimeout(d time.Duration) *Chain {
	c.timeout = d
	return c
}

// Names returns the backend names in rank order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Describe implements Describer.
func (c *Chain) Describe(ctx context.Context, req Request) (string, error) {
	if len(c.backends) == 0 {
		observability.RecordDegraded("vision")
		return language.Phrase(req.Language, language.PhraseVisionUnavailable), nil
	}

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := c.call(ctx, b, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("description backend failed",
				"backend", b.Name(),
				"session_id", req.SessionID,
				"outcome", observability.Outcome(err),
				"error", err,
			)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			c.logger.Warn("description backend returned no text", "backend", b.Name(), "session_id", req.SessionID)
			continue
		}
		return text, nil
	}

	observability.RecordDegraded("vision")
	return language.Phrase(req.Language, language.PhraseAnalysisFailed), nil
}

func (c *Chain) call(ctx context.Context, b Backend, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := b.Describe(ctx, req)
	observability.RecordBackendCall("vision", b.Name(), err, time.Since(start))
	return text, err
}

// Forget implements Describer.
func (c *Chain) Forget(sessionID string) {
	for _, b := range c.backends {
		b.Forget(sessionID)
	}
}
