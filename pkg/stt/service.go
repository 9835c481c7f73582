// Package stt turns the client's spoken WAV query into text with a language
// tag. Backends are ranked in a Chain that is evaluated on every call.
package stt

import (
	"context"

	"github.com/aixgo-dev/visionguide/pkg/language"
)

// Result is a transcription. Language is empty when the backend could not
// tell which supported language was spoken.
type Result struct {
	Text     string
	Language language.Language
}

// Transcriber converts WAV audio to text. Implementations never return an
// unsupported language.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}

// Backend is one transcription implementation.
type Backend interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Transcribe converts a WAV stream to text.
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}
