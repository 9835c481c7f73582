package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  BackendConfig
		want string
	}{
		{"no configuration", BackendConfig{}, "memory"},
		{"reachable redis", BackendConfig{RedisURL: "redis://" + mr.Addr()}, "redis"},
		{"malformed redis url", BackendConfig{RedisURL: "::bad::"}, "memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Open(ctx, tt.cfg, discardLogger())
			defer func() { _ = b.Close() }()

			if b.Name() != tt.want {
				t.Errorf("backend = %s, want %s", b.Name(), tt.want)
			}
		})
	}
}
