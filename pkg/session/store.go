package session

import (
	"context"
	"errors"
	"time"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
)

// Backend abstracts session persistence.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs, metrics and health reports.
	Name() string

	// Load retrieves a session by ID.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Load(ctx context.Context, id string) (*Session, error)

	// Save writes the full session record. ttl is the idle expiry a backend
	// with native expiry should apply; zero means no expiry.
	Save(ctx context.Context, s *Session, ttl time.Duration) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// SweepExpired removes sessions whose last activity is before cutoff and
	// returns how many were removed. Backends with native expiry return 0.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}
