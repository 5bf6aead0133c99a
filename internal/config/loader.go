package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/palchat/internal/engine"
)

// ValidProviderNames lists the built-in provider names per stage. [Validate]
// warns about names outside this list, since third-party factories may be
// registered.
var ValidProviderNames = map[string][]string{
	"stt": {"openai", "whisper", "deepgram"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML file at path on top of [Default]. An empty path
// returns the defaults unvalidated, so that the environment can still fill
// in secrets before [Validate] runs.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays secrets and deployment settings from the environment.
// lookup is usually os.LookupEnv. Empty variables are ignored. API keys are
// only applied to the providers they belong to.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get("OPENAI_API_KEY"); ok {
		for _, e := range []*ProviderEntry{&cfg.Providers.STT, &cfg.Providers.LLM} {
			if e.Name == "openai" {
				e.APIKey = v
			}
		}
	}
	if v, ok := get("ELEVENLABS_API_KEY"); ok && cfg.Providers.TTS.Name == "elevenlabs" {
		cfg.Providers.TTS.APIKey = v
	}
	if v, ok := get("DEEPGRAM_API_KEY"); ok && cfg.Providers.STT.Name == "deepgram" {
		cfg.Providers.STT.APIKey = v
	}
	if v, ok := get("ELEVENLABS_VOICE_ID"); ok {
		cfg.Pipeline.DefaultVoiceID = v
	}
	if v, ok := get("PALCHAT_LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := get("PALCHAT_LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := get("DATABASE_URL"); ok {
		cfg.Characters.PostgresDSN = v
	}
	if v, ok := get("PALCHAT_S3_ACCESS_KEY"); ok {
		cfg.Audio.S3.AccessKey = v
	}
	if v, ok := get("PALCHAT_S3_SECRET_KEY"); ok {
		cfg.Audio.S3.SecretKey = v
	}
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every problem found. Missing API keys are not errors: the provider's
// authentication failure surfaces on the first turn instead.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl %s must not be negative", cfg.Server.SessionTTL))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests_per_minute %d must not be negative", cfg.Server.RateLimit.RequestsPerMinute))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	for kind, e := range map[string]ProviderEntry{
		"stt": cfg.Providers.STT,
		"llm": cfg.Providers.LLM,
		"tts": cfg.Providers.TTS,
	} {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
			continue
		}
		validateProviderName(kind, e.Name)
		if e.Breaker.MaxFailures < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.breaker.max_failures must not be negative", kind))
		}
	}

	p := cfg.Pipeline
	if p.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens %d must be positive", p.MaxTokens))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", p.Temperature))
	}
	if p.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("pipeline.history_window %d must not be negative", p.HistoryWindow))
	}
	if p.MaxContextTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_context_tokens %d must not be negative", p.MaxContextTokens))
	}
	if _, ok := engine.ParseVoicePolicy(p.VoicePolicy); !ok {
		errs = append(errs, fmt.Errorf("pipeline.voice_policy %q is invalid; valid values: default, strict", p.VoicePolicy))
	}

	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	if cfg.Characters.File != "" && cfg.Characters.PostgresDSN != "" {
		errs = append(errs, errors.New("characters.file and characters.postgres_dsn are mutually exclusive"))
	}

	switch cfg.Audio.Publisher {
	case PublisherDataURI:
	case PublisherS3:
		s3 := cfg.Audio.S3
		if s3.Endpoint == "" {
			errs = append(errs, errors.New("audio.s3.endpoint is required when audio.publisher is s3"))
		}
		if s3.Bucket == "" {
			errs = append(errs, errors.New("audio.s3.bucket is required when audio.publisher is s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.publisher %q is invalid; valid values: datauri, s3", cfg.Audio.Publisher))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not a built-in provider of
// the given kind.
func validateProviderName(kind, name string) {
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
