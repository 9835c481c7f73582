// Package pipeline runs one conversational turn: transcribe the spoken
// query, describe the photo in the context of the session, record the turn
// and synthesize the answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
	"github.com/aixgo-dev/visionguide/pkg/session"
	"github.com/aixgo-dev/visionguide/pkg/stt"
	"github.com/aixgo-dev/visionguide/pkg/tts"
	"github.com/aixgo-dev/visionguide/pkg/vision"
)

// Mode is the interaction mode chosen by the client.
type Mode string

const (
	// ModeSnapshot describes the photo without a spoken query.
	ModeSnapshot Mode = "snapshot"
	// ModeConversation transcribes the attached audio as the query.
	ModeConversation Mode = "conversation"
)

// ErrInvalidMode is returned by ParseMode for unknown modes.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode validates a client-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSnapshot, ModeConversation:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidMode, s, ModeSnapshot, ModeConversation)
	}
}

// AnalyzeRequest is one validated client interaction.
type AnalyzeRequest struct {
	SessionID string
	Mode      Mode
	// Image is JPEG data.
	Image []byte
	// Audio is an optional WAV stream, used in conversation mode.
	Audio []byte
}

// AnalyzeResult is the reply to an interaction.
type AnalyzeResult struct {
	// Audio is 16 kHz mono WAV.
	Audio    []byte
	Text     string
	Language language.Language
}

// Pipeline orchestrates the adapters and the session store.
type Pipeline struct {
	store       *session.Store
	transcriber stt.Transcriber
	describer   vision.Describer
	synthesizer tts.Synthesizer
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline.
func New(store *session.Store, transcriber stt.Transcriber, describer vision.Describer, synthesizer tts.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		transcriber: transcriber,
		describer:   describer,
		synthesizer: synthesizer,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze runs one turn. The only errors are cancellation and a synthesis
// failure that the canned fallback phrase could not recover from.
func (p *Pipeline) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.analyze",
		attribute.String("session.id", req.SessionID),
		attribute.String("mode", string(req.Mode)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	sess := p.store.GetOrCreate(ctx, req.SessionID)

	var query string
	lang := sess.Language()
	if req.Mode == ModeConversation && len(req.Audio) > 0 {
		var res stt.Result
		res, err = p.transcribe(ctx, req.Audio)
		if err != nil {
			return nil, err
		}
		query = res.Text
		// An empty transcription carries no language evidence.
		if query != "" && res.Language != "" {
			lang = res.Language
		}
		p.logger.Info("query transcribed", "session_id", sess.ID, "language", lang, "chars", len(query))
	}

	var text string
	text, err = p.describe(ctx, vision.Request{
		SessionID: sess.ID,
		Image:     req.Image,
		Query:     query,
		History:   sess.Recent(session.ContextTurns),
		Language:  lang,
	})
	if err != nil {
		return nil, err
	}

	lang = language.Normalize(string(lang))

	recorded := query
	if recorded == "" {
		recorded = session.SnapshotQuery
	}
	sess.RecordTurn(recorded, lang, session.ImageRef(sess.ID), text)
	p.store.Update(ctx, sess)
	observability.RecordTurn(string(req.Mode), string(lang))

	var audio []byte
	audio, err = p.synthesize(ctx, text, lang)
	if err != nil {
		p.logger.Warn("synthesis failed, speaking fallback phrase", "session_id", sess.ID, "error", err)
		audio, err = p.synthesize(ctx, language.Phrase(lang, language.PhraseAudioFailed), lang)
		if err != nil {
			return nil, fmt.Errorf("synthesize response: %w", err)
		}
	}

	return &AnalyzeResult{Audio: audio, Text: text, Language: lang}, nil
}

// Reset deletes the session and any conversation the describer holds for it.
func (p *Pipeline) Reset(ctx context.Context, id string) {
	p.store.Delete(ctx, id)
	p.describer.Forget(id)
	p.logger.Info("session reset", "session_id", id)
}

// Session returns the live session with id.
func (p *Pipeline) Session(ctx context.Context, id string) (*session.Session, bool) {
	return p.store.Get(ctx, id)
}

// ErrorAudio speaks "an error occurred" with msg in the normalized language.
func (p *Pipeline) ErrorAudio(ctx context.Context, msg string, lang language.Language) ([]byte, error) {
	lang = language.Normalize(string(lang))
	return p.synthesize(ctx, language.ErrorPhrase(lang, msg), lang)
}

// Apology speaks the generic unexpected-error phrase.
func (p *Pipeline) Apology(ctx context.Context, lang language.Language) ([]byte, error) {
	lang = language.Normalize(string(lang))
	return p.synthesize(ctx, language.Phrase(lang, language.PhraseUnexpectedError), lang)
}

// RateLimitAudio speaks the rate-limit notice in the baseline language.
func (p *Pipeline) RateLimitAudio(ctx context.Context) ([]byte, error) {
	return p.synthesize(ctx, language.Phrase(language.Baseline, language.PhraseRateLimited), language.Baseline)
}

func (p *Pipeline) transcribe(ctx context.Context, wav []byte) (stt.Result, error) {
	ctx, span := observability.StartSpan(ctx, "stt.transcribe", attribute.Int("audio.bytes", len(wav)))

	res, err := p.transcriber.Transcribe(ctx, wav)
	observability.EndSpan(span, err)
	return res, err
}

func (p *Pipeline) describe(ctx context.Context, req vision.Request) (string, error) {
	ctx, span := observability.StartSpan(ctx, "vision.describe",
		attribute.Int("image.bytes", len(req.Image)),
		attribute.Int("history.turns", len(req.History)),
		attribute.String("language", string(req.Language)),
	)

	text, err := p.describer.Describe(ctx, req)
	observability.EndSpan(span, err)
	return text, err
}

func (p *Pipeline) synthesize(ctx context.Context, text string, lang language.Language) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "tts.synthesize",
		attribute.Int("text.chars", len(text)),
		attribute.String("language", string(lang)),
	)

	audio, err := p.synthesizer.Synthesize(ctx, text, lang)
	observability.EndSpan(span, err)
	return audio, err
}
