package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aixgo-dev/visionguide/pkg/audio"
	"github.com/aixgo-dev/visionguide/pkg/language"
)

const (
	espeakProvider = "espeak"

	// DefaultEspeakPath is looked up on PATH.
	DefaultEspeakPath = "espeak-ng"

	defaultEspeakRate = 150
)

// EspeakService synthesizes offline by running espeak-ng with --stdout and
// converting its WAV output to the client format.
type EspeakService struct {
	path   string
	rate   int
	voices map[language.Language]string
}

// EspeakOption configures the espeak service.
type EspeakOption func(*EspeakService)

// WithEspeakRate sets the speaking rate in words per minute.
func WithEspeakRate(wpm int) EspeakOption {
	return func(s *EspeakService) {
		if wpm > 0 {
			s.rate = wpm
		}
	}
}

// NewEspeak creates an espeak service running the binary at path.
func NewEspeak(path string, opts ...EspeakOption) *EspeakService {
	if path == "" {
		path = DefaultEspeakPath
	}
	s := &EspeakService{
		path: path,
		rate: defaultEspeakRate,
		voices: map[language.Language]string{
			language.English: "en",
			language.Hindi:   "hi",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *EspeakService) Name() string {
	return espeakProvider
}

// Available reports whether the binary can be found.
func (s *EspeakService) Available() bool {
	_, err := exec.LookPath(s.path)
	return err == nil
}

// Synthesize runs espeak-ng for text in lang.
func (s *EspeakService) Synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	voice, ok := s.voices[lang]
	if !ok {
		voice = s.voices[language.Baseline]
	}

	// Text goes through stdin so it is never parsed as a flag.
	cmd := exec.CommandContext(ctx, s.path, "--stdin", "--stdout", "-v", voice, "-s", strconv.Itoa(s.rate))
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		be := &BackendError{Backend: espeakProvider, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			be.Status = exitErr.ExitCode()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			be.Err = fmt.Errorf("%s: %w", msg, err)
		}
		return nil, be
	}

	w, err := audio.ParseWAV(stdout.Bytes())
	if err != nil {
		return nil, &BackendError{Backend: espeakProvider, Err: fmt.Errorf("unexpected output: %w", err)}
	}
	if len(w.Data) == 0 {
		return nil, &BackendError{Backend: espeakProvider, Err: errors.New("no samples produced")}
	}
	out, err := audio.ToOutput(w)
	if err != nil {
		return nil, &BackendError{Backend: espeakProvider, Err: fmt.Errorf("convert audio: %w", err)}
	}
	return out, nil
}
