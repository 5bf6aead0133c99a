// Package config provides the configuration schema, loader, environment
// overlay and provider registry for the palchat server.
package config

import (
	"time"

	"github.com/MrWong99/palchat/internal/engine"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Publisher names where synthesized audio is published.
type Publisher string

const (
	// PublisherDataURI inlines audio as a base64 data: URI.
	PublisherDataURI Publisher = "datauri"

	// PublisherS3 uploads audio to an S3-compatible bucket.
	PublisherS3 Publisher = "s3"
)

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader]; fields missing from the file keep the values of
// [Default].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Characters CharactersConfig `yaml:"characters"`
	Audio      AudioConfig      `yaml:"audio"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds HTTP and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// SessionTTL is how long an untouched session is kept.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// MaxUploadBytes caps the size of an uploaded recording.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TLS enables HTTPS. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig limits requests per client IP. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the implementation for each pipeline stage. Each
// entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if it needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o", "whisper-1").
	// Empty uses the provider's default.
	Model string `yaml:"model"`

	// Timeout bounds one provider call. Zero keeps the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Breaker configures the stage's circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// BreakerConfig tunes a stage's circuit breaker. MaxFailures == 0 disables
// the breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PipelineConfig tunes the turn pipeline.
type PipelineConfig struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// HistoryWindow caps the history messages sent per request. Zero sends
	// all of it.
	HistoryWindow int `yaml:"history_window"`

	// MaxContextTokens drops the oldest turns from a request while its
	// estimated size exceeds the budget. Zero disables the check.
	MaxContextTokens int `yaml:"max_context_tokens"`

	FallbackReply string `yaml:"fallback_reply"`

	// VoicePolicy is "default" or "strict".
	VoicePolicy    string `yaml:"voice_policy"`
	DefaultVoiceID string `yaml:"default_voice_id"`

	// Language is an optional transcription language hint (e.g., "en").
	Language string `yaml:"language"`
}

// CharactersConfig selects where the character catalog comes from. With
// neither File nor PostgresDSN set, the embedded catalog is used.
type CharactersConfig struct {
	File        string `yaml:"file"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// Seed writes the embedded catalog to an empty Postgres table.
	Seed bool `yaml:"seed"`

	// Default overrides the catalog's default character ID.
	Default string `yaml:"default"`
}

// AudioConfig controls how synthesized audio reaches the client.
type AudioConfig struct {
	Publisher Publisher `yaml:"publisher"`
	S3        S3Config  `yaml:"s3"`
}

// S3Config configures the S3-compatible bucket for [PublisherS3].
type S3Config struct {
	Endpoint      string        `yaml:"endpoint"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
	Prefix        string        `yaml:"prefix"`
	Expiry        time.Duration `yaml:"expiry"`
	PublicBaseURL string        `yaml:"public_base_url"`
}

// TelemetryConfig names the service in traces and metrics.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of new traces recorded, in [0, 1].
	// Requests arriving with a sampled traceparent are always recorded.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default returns a configuration that works with only OPENAI_API_KEY and
// ELEVENLABS_API_KEY set: OpenAI transcription and chat, ElevenLabs speech,
// the embedded characters and data: URI audio.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			LogLevel:       LogInfo,
			LogFormat:      LogText,
			SessionTTL:     30 * time.Minute,
			MaxUploadBytes: 25 << 20,
		},
		Providers: ProvidersConfig{
			STT: ProviderEntry{Name: "openai"},
			LLM: ProviderEntry{Name: "openai"},
			TTS: ProviderEntry{Name: "elevenlabs"},
		},
		Pipeline: PipelineConfig{
			MaxTokens:     engine.DefaultMaxTokens,
			Temperature:   engine.DefaultTemperature,
			HistoryWindow: 40,
			FallbackReply: engine.FallbackReply,
			VoicePolicy:   engine.VoiceDefault.String(),
		},
		Audio: AudioConfig{
			Publisher: PublisherDataURI,
			S3:        S3Config{Expiry: time.Hour, UseSSL: true},
		},
		Telemetry: TelemetryConfig{ServiceName: "palchat", TraceSampleRatio: 1},
	}
}
