package main

import (
	"context"
	"log/slog"

	"github.com/aixgo-dev/visionguide/internal/pipeline"
	"github.com/aixgo-dev/visionguide/internal/server"
	"github.com/aixgo-dev/visionguide/pkg/config"
	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/observability"
	"github.com/aixgo-dev/visionguide/pkg/session"
	"github.com/aixgo-dev/visionguide/pkg/stt"
	"github.com/aixgo-dev/visionguide/pkg/tts"
	"github.com/aixgo-dev/visionguide/pkg/vision"
)

type app struct {
	store   *session.Store
	sweeper *session.Sweeper
	server  *server.Server
}

// buildApp wires the configured backends into the pipeline and server.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	backend := session.Open(ctx, session.BackendConfig{
		RedisURL:             cfg.Session.RedisURL,
		FirestoreProject:     cfg.Session.FirestoreProject,
		FirestoreCredentials: cfg.Session.FirestoreCredentials,
	}, logger)
	store := session.NewStore(backend,
		session.WithTTL(cfg.Session.TTL()),
		session.WithLogger(logger),
	)

	var sweeper *session.Sweeper
	if backend.Name() == "memory" {
		var err error
		sweeper, err = session.NewSweeper(store, cfg.Session.SweepSchedule, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	transcriber := buildTranscriber(cfg, logger)
	describer := buildDescriber(ctx, cfg, logger)
	synthesizer := buildSynthesizer(cfg, logger)

	p := pipeline.New(store, transcriber, describer, synthesizer, pipeline.WithLogger(logger))

	health := observability.NewHealthChecker(Version)
	health.RegisterCheck(observability.StorageCheck("session", store.Ping))

	limiter := server.NewRateLimiter(
		cfg.Limits.RateLimitRequests,
		cfg.Limits.RateLimitWindow(),
		server.WithGlobalLimit(cfg.Limits.GlobalRPS),
	)

	srv := server.New(server.Config{
		Version:       Version,
		MaxImageBytes: cfg.Limits.MaxImageBytes(),
		MaxAudioBytes: cfg.Limits.MaxAudioBytes(),
		Services: server.Services{
			STT:     transcriber.Names(),
			Vision:  describer.Names(),
			TTS:     synthesizer.Names(),
			Session: store.BackendName(),
		},
	}, p, limiter, health, logger)

	logger.Info("backends configured",
		"stt", transcriber.Names(),
		"vision", describer.Names(),
		"tts", synthesizer.Names(),
		"session", store.BackendName(),
	)

	return &app{store: store, sweeper: sweeper, server: srv}, nil
}

func buildTranscriber(cfg *config.Config, logger *slog.Logger) *stt.Chain {
	var backends []stt.Backend
	if cfg.Backends.OpenAIKey != "" {
		backends = append(backends, stt.NewOpenAI(cfg.Backends.OpenAIKey))
	}
	vosk := stt.NewVosk(map[language.Language]string{
		language.English: cfg.Speech.VoskURLEn,
		language.Hindi:   cfg.Speech.VoskURLHi,
	})
	if vosk.Available() {
		backends = append(backends, vosk)
	}
	if len(backends) == 0 {
		logger.Warn("no transcription backend configured, spoken queries will be ignored")
	}
	return stt.NewChain(logger, backends...).WithTimeout(cfg.Backends.Timeout())
}

func buildDescriber(ctx context.Context, cfg *config.Config, logger *slog.Logger) *vision.Chain {
	var backends []vision.Backend
	if cfg.Vision.GeminiAPIKey != "" {
		gemini, err := vision.NewGemini(ctx, cfg.Vision.GeminiAPIKey, vision.WithGeminiModel(cfg.Vision.GeminiModel))
		if err != nil {
			logger.Warn("gemini unavailable", "error", err)
		} else {
			backends = append(backends, gemini)
		}
	}
	if cfg.Backends.OpenAIKey != "" {
		backends = append(backends, vision.NewOpenAI(cfg.Backends.OpenAIKey, vision.WithOpenAIModel(cfg.Vision.OpenAIVisionModel)))
	}
	if cfg.Vision.BedrockRegion != "" {
		bedrock, err := vision.NewBedrock(ctx, cfg.Vision.BedrockRegion, cfg.Vision.BedrockModelID)
		if err != nil {
			logger.Warn("bedrock unavailable", "error", err)
		} else {
			backends = append(backends, bedrock)
		}
	}
	if len(backends) == 0 {
		logger.Warn("no description backend configured, answers will be canned")
	}
	return vision.NewChain(logger, backends...).WithTimeout(cfg.Backends.Timeout())
}

func buildSynthesizer(cfg *config.Config, logger *slog.Logger) *tts.Chain {
	var backends []tts.Backend
	if cfg.Backends.OpenAIKey != "" {
		backends = append(backends, tts.NewOpenAI(cfg.Backends.OpenAIKey))
	}
	espeak := tts.NewEspeak(cfg.Speech.EspeakPath)
	if espeak.Available() {
		backends = append(backends, espeak)
	} else {
		logger.Warn("offline speech engine not found", "path", cfg.Speech.EspeakPath)
	}
	return tts.NewChain(logger, backends...).WithTimeout(cfg.Backends.Timeout())
}
