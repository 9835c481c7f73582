package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/visionguide/pkg/session"
)

// maxConfigFileSize bounds the YAML file read by Load.
const maxConfigFileSize = 1 << 20

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Limits   LimitsConfig   `yaml:"limits"`
	Vision   VisionConfig   `yaml:"vision"`
	Speech   SpeechConfig   `yaml:"speech"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Backends BackendsConfig `yaml:"backends"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// SessionConfig holds session store settings
type SessionConfig struct {
	TTLSeconds           int    `yaml:"ttl_seconds"`
	SweepSchedule        string `yaml:"sweep_schedule"`
	RedisURL             string `yaml:"redis_url"`
	FirestoreProject     string `yaml:"firestore_project"`
	FirestoreCredentials string `yaml:"firestore_credentials"`
}

// TTL returns the session expiry window.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// LimitsConfig holds upload and rate limits
type LimitsConfig struct {
	MaxImageSizeMB     int     `yaml:"max_image_size_mb"`
	MaxAudioSizeMB     int     `yaml:"max_audio_size_mb"`
	RateLimitRequests  int     `yaml:"rate_limit_max_requests"`
	RateLimitWindowSec int     `yaml:"rate_limit_window_seconds"`
	GlobalRPS          float64 `yaml:"rate_limit_global_rps"`
}

// MaxImageBytes returns the image size limit in bytes.
func (l LimitsConfig) MaxImageBytes() int64 {
	return int64(l.MaxImageSizeMB) << 20
}

// MaxAudioBytes returns the audio size limit in bytes.
func (l LimitsConfig) MaxAudioBytes() int64 {
	return int64(l.MaxAudioSizeMB) << 20
}

// RateLimitWindow returns the sliding window length.
func (l LimitsConfig) RateLimitWindow() time.Duration {
	return time.Duration(l.RateLimitWindowSec) * time.Second
}

// VisionConfig holds description backend settings
type VisionConfig struct {
	GeminiAPIKey      string `yaml:"gemini_api_key"`
	GeminiModel       string `yaml:"gemini_model"`
	OpenAIVisionModel string `yaml:"openai_vision_model"`
	BedrockRegion     string `yaml:"bedrock_region"`
	BedrockModelID    string `yaml:"bedrock_model_id"`
}

// SpeechConfig holds transcription and synthesis backend settings
type SpeechConfig struct {
	VoskURLEn  string `yaml:"vosk_url_en"`
	VoskURLHi  string `yaml:"vosk_url_hi"`
	EspeakPath string `yaml:"espeak_path"`
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Exporter     string `yaml:"exporter"` // none, otlp, stdout
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPHeaders  string `yaml:"otlp_headers"`
}

// BackendsConfig holds settings shared by all hosted backends
type BackendsConfig struct {
	OpenAIKey      string `yaml:"openai_api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call backend timeout.
func (b BackendsConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Log:    LogConfig{Level: "info", Format: "text"},
		Session: SessionConfig{
			TTLSeconds:    1800,
			SweepSchedule: "@every 1m",
		},
		Limits: LimitsConfig{
			MaxImageSizeMB:     5,
			MaxAudioSizeMB:     10,
			RateLimitRequests:  10,
			RateLimitWindowSec: 60,
		},
		Speech:   SpeechConfig{EspeakPath: "espeak-ng"},
		Tracing:  TracingConfig{Exporter: "none"},
		Backends: BackendsConfig{TimeoutSeconds: 30},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	integer := func(dst *int, key string) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}

	str(&c.Vision.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	str(&c.Vision.GeminiModel, "GEMINI_MODEL")
	str(&c.Backends.OpenAIKey, "OPENAI_API_KEY")
	str(&c.Vision.OpenAIVisionModel, "OPENAI_VISION_MODEL")
	str(&c.Vision.BedrockRegion, "BEDROCK_REGION")
	str(&c.Vision.BedrockModelID, "BEDROCK_MODEL_ID")
	str(&c.Session.RedisURL, "REDIS_URL")
	str(&c.Session.FirestoreProject, "FIRESTORE_PROJECT")
	str(&c.Session.FirestoreCredentials, "FIRESTORE_CREDENTIALS")
	integer(&c.Session.TTLSeconds, "SESSION_TTL_SECONDS")
	str(&c.Session.SweepSchedule, "SESSION_SWEEP_SCHEDULE")
	str(&c.Server.Host, "SERVER_HOST")
	integer(&c.Server.Port, "SERVER_PORT")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	integer(&c.Limits.MaxImageSizeMB, "MAX_IMAGE_SIZE_MB")
	integer(&c.Limits.MaxAudioSizeMB, "MAX_AUDIO_SIZE_MB")
	integer(&c.Limits.RateLimitRequests, "RATE_LIMIT_MAX_REQUESTS")
	integer(&c.Limits.RateLimitWindowSec, "RATE_LIMIT_WINDOW_SECONDS")
	str(&c.Speech.VoskURLEn, "VOSK_URL_EN")
	str(&c.Speech.VoskURLHi, "VOSK_URL_HI")
	str(&c.Speech.EspeakPath, "ESPEAK_PATH")
	integer(&c.Backends.TimeoutSeconds, "BACKEND_TIMEOUT_SECONDS")
	str(&c.Tracing.Exporter, "OTEL_TRACES_EXPORTER")
	str(&c.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	str(&c.Tracing.OTLPHeaders, "OTEL_EXPORTER_OTLP_HEADERS")

	if v, ok := lookup("RATE_LIMIT_GLOBAL_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_GLOBAL_RPS: invalid number %q", v))
		} else {
			c.Limits.GlobalRPS = f
		}
	}

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value int
	}{
		{"server.port", c.Server.Port},
		{"session.ttl_seconds", c.Session.TTLSeconds},
		{"limits.max_image_size_mb", c.Limits.MaxImageSizeMB},
		{"limits.max_audio_size_mb", c.Limits.MaxAudioSizeMB},
		{"limits.rate_limit_max_requests", c.Limits.RateLimitRequests},
		{"limits.rate_limit_window_seconds", c.Limits.RateLimitWindowSec},
		{"backends.timeout_seconds", c.Backends.TimeoutSeconds},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Limits.GlobalRPS < 0 {
		errs = append(errs, fmt.Errorf("limits.rate_limit_global_rps must not be negative, got %g", c.Limits.GlobalRPS))
	}
	if err := session.ParseSchedule(c.Session.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("session.sweep_schedule: %w", err))
	}
	switch c.Tracing.Exporter {
	case "", "none", "otlp", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unknown exporter %q", c.Tracing.Exporter))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out.Vision.GeminiAPIKey = mask(c.Vision.GeminiAPIKey)
	out.Backends.OpenAIKey = mask(c.Backends.OpenAIKey)
	out.Tracing.OTLPHeaders = mask(c.Tracing.OTLPHeaders)
	out.Session.RedisURL = maskUserinfo(c.Session.RedisURL)
	return &out
}

// maskUserinfo hides the credentials of a URL such as
// redis://:password@host:6379. Unparseable values are masked entirely.
func maskUserinfo(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	if u.User != nil {
		u.User = url.User("****")
	}
	return u.String()
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
