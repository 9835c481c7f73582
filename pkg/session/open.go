package session

import (
	"context"
	"log/slog"
)

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	RedisURL             string
	FirestoreProject     string
	FirestoreCredentials string
}

// Open returns the first backend that can be reached: Redis when a URL is
// configured, then Firestore when a project is configured, then process
// memory. Connection failures are logged and fall through to the next option.
func Open(ctx context.Context, cfg BackendConfig, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RedisURL != "" {
		b, err := NewRedisBackend(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("session store connected", "backend", b.Name())
			return b
		}
		logger.Warn("redis unavailable, trying next session backend", "error", err)
	}

	if cfg.FirestoreProject != "" {
		b, err := NewFirestoreBackend(ctx, FirestoreConfig{
			ProjectID:       cfg.FirestoreProject,
			CredentialsFile: cfg.FirestoreCredentials,
		})
		if err == nil {
			logger.Info("session store connected", "backend", b.Name(), "project", cfg.FirestoreProject)
			return b
		}
		logger.Warn("firestore unavailable, trying next session backend", "error", err)
	}

	logger.Info("using in-memory session store")
	return NewMemoryBackend()
}
