package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/visionguide/pkg/audio"
	"github.com/aixgo-dev/visionguide/pkg/language"
)

type fakeBackend struct {
	name  string
	out   []byte
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Synthesize(context.Context, string, language.Language) ([]byte, error) {
	f.calls++
	return f.out, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_Synthesize(t *testing.T) {
	failing := &fakeBackend{name: "primary", err: errors.New("quota")}
	offline := &fakeBackend{name: "offline", out: []byte("RIFF....")}
	unused := &fakeBackend{name: "unused", out: []byte("x")}

	c := NewChain(quietLogger(), failing, offline, unused)
	out, err := c.Synthesize(context.Background(), "hello", language.English)

	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF...."), out)
	assert.Equal(t, 0, unused.calls)
	assert.Equal(t, []string{"primary", "offline", "unused"}, c.Names())
}

func TestChain_AllFail(t *testing.T) {
	cause := errors.New("network")
	c := NewChain(quietLogger(), &fakeBackend{name: "a", err: cause})

	_, err := c.Synthesize(context.Background(), "hello", language.Hindi)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, cause)

	_, err = NewChain(quietLogger()).Synthesize(context.Background(), "hello", language.English)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestChain_EmptyText(t *testing.T) {
	b := &fakeBackend{name: "a", out: []byte("x")}
	_, err := NewChain(quietLogger(), b).Synthesize(context.Background(), "", language.English)

	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, 0, b.calls)
}

func TestBackendError(t *testing.T) {
	cause := errors.New("boom")
	err := &BackendError{Backend: "espeak", Status: 1, Err: cause}
	assert.Equal(t, "espeak: status 1: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Temporary())
	assert.Equal(t, "espeak: boom", (&BackendError{Backend: "espeak", Err: cause}).Error())
}

func TestOpenAIService_Synthesize(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/speech"), r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "audio/pcm")
		// 0.1 s of 24 kHz mono PCM16.
		_, _ = w.Write(make([]byte, 2400*2))
	}))
	defer server.Close()

	svc := NewOpenAI("key", WithOpenAIBaseURL(server.URL+"/v1"), WithOpenAIVoice(language.Hindi, "nova"))
	out, err := svc.Synthesize(context.Background(), "नमस्ते", language.Hindi)
	require.NoError(t, err)

	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "pcm", got["response_format"])
	assert.Equal(t, "नमस्ते", got["input"])

	w, err := audio.ParseWAV(out)
	require.NoError(t, err)
	assert.Equal(t, audio.OutputSampleRate, w.SampleRate)
	assert.Equal(t, 1, w.Channels)
	assert.Len(t, w.Data, 1600*2)
}

func TestOpenAIService_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAI("key", WithOpenAIBaseURL(server.URL)).Synthesize(context.Background(), "hi", language.English)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusTooManyRequests, be.Status)
	assert.True(t, be.Temporary())

	_, err = NewOpenAI("key").Synthesize(context.Background(), "", language.English)
	assert.ErrorIs(t, err, ErrEmptyText)
}

// fakeEspeak writes a shell script that records its arguments and stdin and
// prints wav on stdout.
func fakeEspeak(t *testing.T, wav []byte, exitCode int) (path, argsFile, stdinFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	wavFile := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(wavFile, wav, 0o600))
	argsFile = filepath.Join(dir, "args")
	stdinFile = filepath.Join(dir, "stdin")

	script := "#!/bin/sh\n" +
		"echo \"$@\" > " + argsFile + "\n" +
		"cat > " + stdinFile + "\n" +
		"cat " + wavFile + "\n"
	if exitCode != 0 {
		script += "echo 'voice not found' >&2\nexit 3\n"
	}
	path = filepath.Join(dir, "espeak-ng")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) //nolint:gosec // test executable
	return path, argsFile, stdinFile
}

func TestEspeakService_Synthesize(t *testing.T) {
	// espeak-ng emits 22050 Hz mono.
	src := audio.EncodeWAV(make([]byte, 22050*2), 22050, 1, 16)
	path, argsFile, stdinFile := fakeEspeak(t, src, 0)

	svc := NewEspeak(path)
	assert.True(t, svc.Available())

	out, err := svc.Synthesize(context.Background(), "-v is not a flag", language.Hindi)
	require.NoError(t, err)

	w, err := audio.ParseWAV(out)
	require.NoError(t, err)
	assert.Equal(t, audio.OutputSampleRate, w.SampleRate)
	assert.Len(t, w.Data, 16000*2)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--stdin --stdout -v hi -s 150", strings.TrimSpace(string(args)))

	stdin, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.Equal(t, "-v is not a flag", string(stdin))
}

func TestEspeakService_Failures(t *testing.T) {
	path, _, _ := fakeEspeak(t, nil, 3)
	_, err := NewEspeak(path).Synthesize(context.Background(), "hello", language.English)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Status)
	assert.Contains(t, be.Error(), "voice not found")
	assert.False(t, be.Temporary())

	garbage, _, _ := fakeEspeak(t, []byte("not audio"), 0)
	_, err = NewEspeak(garbage).Synthesize(context.Background(), "hello", language.English)
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Error(), "unexpected output")

	missing := NewEspeak(filepath.Join(t.TempDir(), "missing-espeak"))
	assert.False(t, missing.Available())
	_, err = missing.Synthesize(context.Background(), "hello", language.English)
	assert.Error(t, err)
}

type stallingBackend struct{}

func (stallingBackend) Name() string { return "stalled" }

func (stallingBackend) Synthesize(ctx context.Context, _ string, _ language.Language) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestChain_StalledBackendFallsThrough(t *testing.T) {
	offline := &fakeBackend{name: "espeak", out: []byte("RIFF")}
	c := NewChain(quietLogger(), stallingBackend{}, offline).WithTimeout(20 * time.Millisecond)

	out, err := c.Synthesize(context.Background(), "hello", language.English)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), out)
	assert.Equal(t, 1, offline.calls)
}
