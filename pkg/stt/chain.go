package stt

import (
	"context"
	"log/slog"
	"time"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// Chain tries its backends in rank order on every call. A backend that errors
// or recognizes nothing is skipped. When a backend cannot name the language,
// it is guessed from the script of the text.
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

// WithTimeout sets the deadline of each backend call. Zero leaves calls
// bounded only by the caller's context.
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

// Transcribe returns the first non-empty transcription. When every backend
// fails the result is empty text in the baseline language and a nil error;
// the caller treats it like a queryless request.
func (c *Chain) Transcribe(ctx context.Context, wav []byte) (Result, error) {
	empty := Result{Language: language.Baseline}
	if len(wav) == 0 {
		return empty, nil
	}

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return empty, err
		}

		res, err := c.call(ctx, b, wav)
		if err != nil {
			if ctx.Err() != nil {
				return empty, ctx.Err()
			}
			c.logger.Warn("transcription backend failed",
				"backend", b.Name(),
				"outcome", observability.Outcome(err),
				"error", err,
			)
			continue
		}
		if res.Text == "" {
			continue
		}

		if !language.Supported(res.Language) {
			res.Language = language.DetectScript(res.Text)
		}
		c.logger.Debug("transcribed",
			"backend", b.Name(),
			"language", res.Language,
			"chars", len([]rune(res.Text)),
		)
		return res, nil
	}

	c.logger.Warn("all transcription backends failed", "backends", len(c.backends))
	observability.RecordDegraded("stt")
	return empty, nil
}

func (c *Chain) call(ctx context.Context, b Backend, wav []byte) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := b.Transcribe(ctx, wav)
	observability.RecordBackendCall("stt", b.Name(), err, time.Since(start))
	return res, err
}
