package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aixgo-dev/visionguide/pkg/audio"
	"github.com/aixgo-dev/visionguide/pkg/language"
)

const (
	voskProvider = "vosk"

	// voskChunkFrames is the number of 16-bit mono frames sent per message.
	voskChunkFrames = 4000

	defaultVoskDialTimeout = 10 * time.Second
)

// VoskService transcribes offline through vosk-server websocket endpoints,
// one per language model. Languages are tried in language.All order and the
// first non-empty transcription wins.
type VoskService struct {
	urls   map[language.Language]string
	dialer *websocket.Dialer
}

// VoskOption configures the Vosk STT service.
type VoskOption func(*VoskService)

// WithVoskDialer sets the websocket dialer.
func WithVoskDialer(d *websocket.Dialer) VoskOption {
	return func(s *VoskService) {
		s.dialer = d
	}
}

// NewVosk creates a Vosk service for the given per-language server URLs.
// Languages without a URL are skipped.
func NewVosk(urls map[language.Language]string, opts ...VoskOption) *VoskService {
	s := &VoskService{
		urls: make(map[language.Language]string, len(urls)),
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultVoskDialTimeout,
		},
	}
	for lang, url := range urls {
		if url != "" {
			s.urls[lang] = url
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *VoskService) Name() string {
	return voskProvider
}

// Available reports whether any language model is configured.
func (s *VoskService) Available() bool {
	return len(s.urls) > 0
}

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type voskResult struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

// Transcribe decodes the WAV stream and sends it to each configured model.
func (s *VoskService) Transcribe(ctx context.Context, wav []byte) (Result, error) {
	if len(wav) == 0 {
		return Result{}, ErrEmptyAudio
	}
	w, err := audio.ParseWAV(wav)
	if err != nil {
		return Result{}, &BackendError{Backend: voskProvider, Err: fmt.Errorf("decode input: %w", err)}
	}
	pcm := audio.DownmixPCM16(w.Data, w.Channels)

	var errs []error
	for _, lang := range language.All() {
		url, ok := s.urls[lang]
		if !ok {
			continue
		}
		text, err := s.recognize(ctx, url, pcm, w.SampleRate)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s model: %w", lang, err))
			continue
		}
		if text != "" {
			return Result{Text: text, Language: lang}, nil
		}
	}

	if len(errs) > 0 {
		return Result{}, &BackendError{Backend: voskProvider, Err: errors.Join(errs...), Transient: true}
	}
	return Result{}, ErrNoSpeech
}

func (s *VoskService) recognize(ctx context.Context, url string, pcm []byte, sampleRate int) (string, error) {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	var cfg voskConfig
	cfg.Config.SampleRate = sampleRate
	if err := conn.WriteJSON(cfg); err != nil {
		return "", fmt.Errorf("send config: %w", err)
	}

	var segments []string
	collect := func(r voskResult) {
		if r.Text != nil {
			if t := strings.TrimSpace(*r.Text); t != "" {
				segments = append(segments, t)
			}
		}
	}

	chunk := voskChunkFrames * 2
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return "", fmt.Errorf("send audio: %w", err)
		}
		var r voskResult
		if err := conn.ReadJSON(&r); err != nil {
			return "", fmt.Errorf("read result: %w", err)
		}
		collect(r)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return "", fmt.Errorf("send eof: %w", err)
	}
	for {
		var r voskResult
		if err := conn.ReadJSON(&r); err != nil {
			return "", fmt.Errorf("read final result: %w", err)
		}
		if r.Text != nil {
			collect(r)
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return strings.Join(segments, " "), nil
}
