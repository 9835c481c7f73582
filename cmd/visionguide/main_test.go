package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/visionguide/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Speech.EspeakPath = filepath.Join(t.TempDir(), "no-espeak")
	return cfg
}

func TestBuildApp_Offline(t *testing.T) {
	cfg := offlineConfig(t)

	a, err := buildApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.Close() })

	assert.Equal(t, "memory", a.store.BackendName())
	assert.NotNil(t, a.sweeper)

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","services":{"stt":[],"vision":[],"tts":[],"session":"memory"}}`, rec.Body.String())
}

func TestBuildChains(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Backends.OpenAIKey = "sk-test"
	cfg.Speech.VoskURLHi = "ws://localhost:2700"

	assert.Equal(t, []string{"openai-whisper", "vosk"}, buildTranscriber(cfg, quietLogger()).Names())
	assert.Equal(t, []string{"openai"}, buildDescriber(context.Background(), cfg, quietLogger()).Names())
	assert.Equal(t, []string{"openai-tts"}, buildSynthesizer(cfg, quietLogger()).Names())
}

func TestBuildApp_InvalidSchedule(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Session.SweepSchedule = "whenever"

	_, err := buildApp(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "visionguide dev\n", out.String())
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("RATE_LIMIT_MAX_REQUESTS=7\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	t.Cleanup(func() { _ = os.Unsetenv("RATE_LIMIT_MAX_REQUESTS") })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--env-file", envFile})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "rate_limit_max_requests: 7")
	assert.Contains(t, out.String(), "****")
	assert.NotContains(t, out.String(), "sk-secret")
}
