package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// Chain tries its backends in rank order and returns the first audio.
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

// Synthesize returns audio from the first backend that succeeds. The error
// wraps ErrSynthesisFailed when none did.
func (c *Chain) Synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	var errs []error
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		wav, err := c.call(ctx, b, text, lang)
		if err != nil {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			c.logger.Warn("synthesis backend failed",
				"backend", b.Name(),
				"language", lang,
				"outcome", observability.Outcome(err),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		c.logger.Debug("synthesized", "backend", b.Name(), "language", lang, "bytes", len(wav))
		return wav, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backend configured", ErrSynthesisFailed)
	}
	return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, errors.Join(errs...))
}

func (c *Chain) call(ctx context.Context, b Backend, text string, lang language.Language) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	wav, err := b.Synthesize(ctx, text, lang)
	observability.RecordBackendCall("tts", b.Name(), err, time.Since(start))
	return wav, err
}
