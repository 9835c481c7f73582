// Package vision obtains spoken-style descriptions of the client's photo from
// hosted multimodal models.
package vision

import (
	"context"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/session"
)

// Request is one description request.
type Request struct {
	// SessionID keys the backend's implicit conversation; empty means none.
	SessionID string
	// Image is JPEG data.
	Image []byte
	// Query is the transcribed question, empty for a plain description.
	Query string
	// History holds earlier turns, oldest first. Only the last
	// session.ContextTurns are used.
	History  []session.Turn
	Language language.Language
}

// Describer produces a description for a request. Implementations degrade to
// canned phrases instead of failing, so the error is reserved for
// cancellation.
type Describer interface {
	Describe(ctx context.Context, req Request) (string, error)
	// Forget drops any conversation state held for the session.
	Forget(sessionID string)
}

// Backend is one hosted model.
type Backend interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string
	Describe(ctx context.Context, req Request) (string, error)
	Forget(sessionID string)
}
