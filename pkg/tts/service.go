// Package tts synthesizes response text into the WAV format the client's
// I2S DAC plays: 16 kHz, mono, 16-bit PCM.
package tts

import (
	"context"

	"github.com/aixgo-dev/visionguide/pkg/language"
)

// Synthesizer converts text to client-ready WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error)
}

// Backend is one synthesis implementation. Synthesize must return a complete
// WAV stream in the output format of package audio.
type Backend interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	Synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error)
}
