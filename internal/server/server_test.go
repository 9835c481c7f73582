package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/visionguide/internal/pipeline"
	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
	"github.com/aixgo-dev/visionguide/pkg/session"
	"github.com/aixgo-dev/visionguide/pkg/stt"
	"github.com/aixgo-dev/visionguide/pkg/vision"
)

type stubTranscriber struct {
	result stt.Result
}

func (s *stubTranscriber) Transcribe(context.Context, []byte) (stt.Result, error) {
	return s.result, nil
}

type stubDescriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubDescriber) Describe(context.Context, vision.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, s.err
}

func (s *stubDescriber) Forget(string) {}

type stubSynthesizer struct {
	err error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string, lang language.Language) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("RIFF" + string(lang) + ":" + text), nil
}

type testEnv struct {
	server      *Server
	store       *session.Store
	transcriber *stubTranscriber
	describer   *stubDescriber
	synthesizer *stubSynthesizer
	clock       *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:       session.NewStore(session.NewMemoryBackend(), session.WithLogger(logger)),
		transcriber: &stubTranscriber{},
		describer:   &stubDescriber{text: "There is a wooden chair about 3 feet directly in front of you."},
		synthesizer: &stubSynthesizer{},
		clock:       newFakeClock(),
	}
	p := pipeline.New(env.store, env.transcriber, env.describer, env.synthesizer, pipeline.WithLogger(logger))
	health := observability.NewHealthChecker("test")
	health.RegisterCheck(observability.StorageCheck("session", env.store.Ping))

	env.server = New(Config{
		Version:       "test",
		MaxImageBytes: 1 << 20,
		MaxAudioBytes: 1 << 20,
		Services: Services{
			STT:     []string{"openai-whisper"},
			Vision:  []string{"gemini"},
			TTS:     []string{"openai-tts", "espeak-ng"},
			Session: "memory",
		},
	}, p, NewRateLimiter(10, time.Minute, WithRateLimitClock(env.clock.Now)), health, logger)
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	field, filename, contentType string
	data                         []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

var (
	smallJPEG = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)
	smallWAV  = append([]byte("RIFF\x24\x00\x00\x00WAVE"), make([]byte, 64)...)
)

func jpegPart() filePart {
	return filePart{field: "image", filename: "capture.jpg", contentType: "image/jpeg", data: smallJPEG}
}

func wavPart() filePart {
	return filePart{field: "audio", filename: "query.wav", contentType: "audio/wav", data: smallWAV}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAnalyze_SnapshotNewSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s1", "mode": "snapshot"}, jpegPart()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, mimeWAV, rec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Equal(t, "en", rec.Header().Get(headerDetectedLanguage))
	assert.Equal(t, env.describer.text, rec.Header().Get(headerResponseText))
	assert.Equal(t, "attachment; filename=response.wav", rec.Header().Get(echo.HeaderContentDisposition))
	assert.NotEmpty(t, rec.Header().Get(headerProcessTime))

	sess, ok := env.store.Get(context.Background(), "s1")
	require.True(t, ok)
	require.Len(t, sess.History, 1)
	assert.Equal(t, session.SnapshotQuery, sess.History[0].UserQuery)
}

func TestAnalyze_ConversationHindi(t *testing.T) {
	env := newTestEnv(t)
	env.transcriber.result = stt.Result{Text: "मेरे सामने क्या है?", Language: language.Hindi}
	env.describer.text = "आपके सामने एक कुर्सी है।"

	rec := env.do(multipartRequest(t, APIPrefix+"/analyze",
		map[string]string{"session_id": "s2", "mode": "conversation"},
		jpegPart(), wavPart()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "hi", rec.Header().Get(headerDetectedLanguage))
	assert.Equal(t, "RIFFhi:"+env.describer.text, rec.Body.String())

	sess, ok := env.store.Get(context.Background(), "s2")
	require.True(t, ok)
	assert.Equal(t, language.Hindi, sess.DetectedLanguage)
}

func TestAnalyze_OversizedImage(t *testing.T) {
	env := newTestEnv(t)
	big := jpegPart()
	big.data = append([]byte{0xFF, 0xD8}, make([]byte, 2<<20)...)

	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s3", "mode": "snapshot"}, big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "image")

	_, ok := env.store.Get(context.Background(), "s3")
	assert.False(t, ok, "no session is created for rejected requests")
	assert.Equal(t, 0, env.describer.calls)
}

func TestAnalyze_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{"session_id": "s4", "mode": "snapshot"}

	for i := 0; i < 10; i++ {
		rec := env.do(multipartRequest(t, "/analyze", fields, jpegPart()))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		env.clock.Advance(time.Second)
	}

	rec := env.do(multipartRequest(t, "/analyze", fields, jpegPart()))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(headerRateLimitExceeded))
	assert.Equal(t, mimeWAV, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "RIFFen:"+language.Phrase(language.English, language.PhraseRateLimited), rec.Body.String())

	sess, ok := env.store.Get(context.Background(), "s4")
	require.True(t, ok)
	assert.Len(t, sess.History, 10, "rejected request does not touch the history")

	env.clock.Advance(61 * time.Second)
	rec = env.do(multipartRequest(t, "/analyze", fields, jpegPart()))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyze_RateLimitedTextFallback(t *testing.T) {
	env := newTestEnv(t)
	env.server.limiter = NewRateLimiter(1, time.Minute, WithRateLimitClock(env.clock.Now))
	fields := map[string]string{"session_id": "s5", "mode": "snapshot"}

	require.Equal(t, http.StatusOK, env.do(multipartRequest(t, "/analyze", fields, jpegPart())).Code)
	env.synthesizer.err = errors.New("tts down")

	rec := env.do(multipartRequest(t, "/analyze", fields, jpegPart()))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(headerRateLimitExceeded))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}

func TestAnalyze_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []filePart
		code   int
		errMsg string
	}{
		{
			name:   "missing session",
			fields: map[string]string{"mode": "snapshot"},
			files:  []filePart{jpegPart()},
			code:   http.StatusBadRequest,
			errMsg: "session_id",
		},
		{
			name:   "bad mode",
			fields: map[string]string{"session_id": "v1", "mode": "video"},
			files:  []filePart{jpegPart()},
			code:   http.StatusBadRequest,
			errMsg: "invalid mode",
		},
		{
			name:   "missing image",
			fields: map[string]string{"session_id": "v2", "mode": "snapshot"},
			code:   http.StatusBadRequest,
			errMsg: "image is required",
		},
		{
			name:   "wrong extension",
			fields: map[string]string{"session_id": "v3", "mode": "snapshot"},
			files:  []filePart{{field: "image", filename: "capture.png", contentType: "image/jpeg", data: smallJPEG}},
			code:   http.StatusBadRequest,
			errMsg: "extensions",
		},
		{
			name:   "wrong content type",
			fields: map[string]string{"session_id": "v4", "mode": "snapshot"},
			files:  []filePart{{field: "image", filename: "capture.jpg", contentType: "image/png", data: smallJPEG}},
			code:   http.StatusBadRequest,
			errMsg: "content type",
		},
		{
			name:   "bad magic",
			fields: map[string]string{"session_id": "v5", "mode": "snapshot"},
			files:  []filePart{{field: "image", filename: "capture.jpg", contentType: "image/jpeg", data: []byte("\x89PNG....")}},
			code:   http.StatusBadRequest,
			errMsg: "not a valid JPEG",
		},
		{
			name:   "bad audio",
			fields: map[string]string{"session_id": "v6", "mode": "conversation"},
			files:  []filePart{jpegPart(), {field: "audio", filename: "query.wav", contentType: "audio/wav", data: []byte("OggS....")}},
			code:   http.StatusBadRequest,
			errMsg: "not a valid WAV",
		},
		{
			name:   "audio extension",
			fields: map[string]string{"session_id": "v7", "mode": "conversation"},
			files:  []filePart{jpegPart(), {field: "audio", filename: "query.mp3", contentType: "audio/mpeg", data: smallWAV}},
			code:   http.StatusBadRequest,
			errMsg: ".wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(multipartRequest(t, "/analyze", tt.fields, tt.files...))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decodeJSON(t, rec)["error"], tt.errMsg)
			assert.Equal(t, 0, env.describer.calls)
		})
	}
}

func TestAnalyze_PipelineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.describer.err = context.DeadlineExceeded

	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s6", "mode": "snapshot"}, jpegPart()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, mimeWAV, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "RIFFen:Sorry, an error occurred: the request timed out", rec.Body.String())
	assert.Equal(t, "the request timed out", rec.Header().Get(headerErrorMessage))
}

func TestAnalyze_PipelineFailureJSONFallback(t *testing.T) {
	env := newTestEnv(t)
	env.synthesizer.err = errors.New("tts down")

	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s7", "mode": "snapshot"}, jpegPart()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "the request could not be processed", decodeJSON(t, rec)["error"])
}

func TestResponseTextHeaderTruncated(t *testing.T) {
	env := newTestEnv(t)
	env.describer.text = strings.Repeat("a", 150) + "\n" + strings.Repeat("b", 150)

	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s8", "mode": "snapshot"}, jpegPart()))
	require.Equal(t, http.StatusOK, rec.Code)
	got := rec.Header().Get(headerResponseText)
	assert.Len(t, got, 200)
	assert.NotContains(t, got, "\n")
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(multipartRequest(t, "/analyze", map[string]string{"session_id": "s9", "mode": "snapshot"}, jpegPart()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/session/s9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "s9", body["session_id"])
	assert.Equal(t, "en", body["detected_language"])
	assert.Len(t, body["chat_history"], 1)

	rec = env.do(multipartRequest(t, APIPrefix+"/session/reset", map[string]string{"session_id": "s9"}))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeJSON(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "s9", body["session_id"])

	rec = env.do(httptest.NewRequest(http.MethodGet, APIPrefix+"/session/s9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decodeJSON(t, rec)["error"])

	rec = env.do(multipartRequest(t, "/session/reset", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfoEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeJSON(t, rec)["status"])

	rec = env.do(httptest.NewRequest(http.MethodGet, APIPrefix+"/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "healthy", body["status"])
	services := body["services"].(map[string]any)
	assert.Equal(t, "memory", services["session"])
	assert.Equal(t, []any{"openai-tts", "espeak-ng"}, services["tts"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeJSON(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body["checks"], "session")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set(echo.HeaderOrigin, "http://camera.local")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)

	rec := env.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestErrorHandler_Apology(t *testing.T) {
	env := newTestEnv(t)
	env.server.echo.GET("/boom", func(echo.Context) error {
		return errors.New("kaboom")
	})
	env.server.echo.GET("/panic", func(echo.Context) error {
		panic("unexpected")
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "kaboom", rec.Header().Get(headerErrorMessage))
	assert.Equal(t, "errorString", rec.Header().Get(headerErrorType))
	assert.Equal(t, "RIFFen:"+language.Phrase(language.English, language.PhraseUnexpectedError), rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, mimeWAV, rec.Header().Get(echo.HeaderContentType))

	env.synthesizer.err = errors.New("tts down")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, language.Phrase(language.English, language.PhraseUnexpectedError), rec.Body.String())
}

func TestErrorHandler_ApologyLanguage(t *testing.T) {
	env := newTestEnv(t)
	env.server.echo.GET("/boom", func(echo.Context) error {
		return errors.New("kaboom")
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/boom?language=hi", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "RIFFhi:"+language.Phrase(language.Hindi, language.PhraseUnexpectedError), rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/boom?language=fr", nil))
	assert.Equal(t, "RIFFen:"+language.Phrase(language.English, language.PhraseUnexpectedError), rec.Body.String())

	env.synthesizer.err = errors.New("tts down")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/boom?language=hi", nil))
	assert.Equal(t, language.Phrase(language.Hindi, language.PhraseUnexpectedError), rec.Body.String())
}

func TestRequestMetrics_RouteLabel(t *testing.T) {
	observability.InitMetrics()
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/wp-login.php?action=lostpassword", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/session/missing-session", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `path="unmatched"`)
	assert.Contains(t, body, `path="/session/:id"`)
	assert.NotContains(t, body, "wp-login")
	assert.NotContains(t, body, "missing-session")
}

func TestHeaderSafe(t *testing.T) {
	assert.Equal(t, "a b", headerSafe("a\nb"))
	assert.Equal(t, "नमस्ते", headerSafe("नमस्ते"))
	assert.Equal(t, 200, len([]rune(headerSafe(strings.Repeat("क", 300)))))
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "HTTPError", errorType(echo.NewHTTPError(http.StatusBadGateway)))
	assert.Equal(t, "errorString", errorType(errors.New("x")))
	assert.Equal(t, "wrapError", errorType(fmt.Errorf("wrap: %w", errors.New("x"))))
}
