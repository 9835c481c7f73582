package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// Store is the session API used by the request pipeline. It wraps a Backend
// and absorbs storage failures: a failed load reads as a missing session and
// a failed write or delete is logged and dropped.
// Store is safe for concurrent use; concurrent updates of the same session
// are last-writer-wins.
type Store struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the idle expiry. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger sets the logger used for degraded storage operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName returns the name of the underlying backend.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// TTL returns the configured idle expiry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create builds a fresh session, persists it and returns it. A new UUID is
// generated when id is empty.
func (s *Store) Create(ctx context.Context, id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	sess := New(id, s.now())
	s.save(ctx, sess, "create")
	s.logger.Debug("session created", "session_id", id, "backend", s.backend.Name())
	return sess
}

// Get returns the session with id. ok is false when the session is absent,
// expired or could not be read.
func (s *Store) Get(ctx context.Context, id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, err := s.backend.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.degraded("load", id, err)
		}
		return nil, false
	}
	if sess.Expired(s.now(), s.ttl) {
		return nil, false
	}
	return sess, true
}

// GetOrCreate returns the existing session with id or creates it.
func (s *Store) GetOrCreate(ctx context.Context, id string) *Session {
	if sess, ok := s.Get(ctx, id); ok {
		return sess
	}
	return s.Create(ctx, id)
}

// Update refreshes the session's last activity and rewrites the full record.
func (s *Store) Update(ctx context.Context, sess *Session) {
	sess.LastActivity = s.now().UTC()
	s.save(ctx, sess, "update")
}

// Delete removes the session with id. It is idempotent.
func (s *Store) Delete(ctx context.Context, id string) {
	if err := s.backend.Delete(ctx, id); err != nil {
		s.degraded("delete", id, err)
	}
}

// SweepExpired removes sessions idle for longer than the TTL from backends
// without native expiry and returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}
	n, err := s.backend.SweepExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		s.degraded("sweep", "", err)
	}
	if n > 0 {
		observability.RecordSessionsSwept(n)
		s.logger.Info("expired sessions removed", "count", n, "backend", s.backend.Name())
	}
	return n
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) save(ctx context.Context, sess *Session, op string) {
	if err := s.backend.Save(ctx, sess, s.ttl); err != nil {
		s.degraded(op, sess.ID, err)
	}
}

func (s *Store) degraded(op, id string, err error) {
	observability.RecordSessionStoreError(s.backend.Name(), op)
	s.logger.Warn("session storage error",
		"op", op,
		"session_id", id,
		"backend", s.backend.Name(),
		"error", err,
	)
}
