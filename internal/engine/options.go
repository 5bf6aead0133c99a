package engine

import (
	"context"
	"time"

	"github.com/MrWong99/palchat/internal/audiostore"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/internal/resilience"
	"github.com/MrWong99/palchat/pkg/audio"
)

// VoicePolicy decides what happens when a character has no voice ID.
type VoicePolicy int

const (
	// VoiceDefault substitutes the deployment's default voice. If that is
	// empty too, the empty ID is forwarded and the service decides.
	VoiceDefault VoicePolicy = iota

	// VoiceStrict requires every character to carry its own voice and fails
	// with a SynthesisError wrapping ErrNoVoice before any network call.
	VoiceStrict
)

// String returns the config spelling of the policy.
func (p VoicePolicy) String() string {
	if p == VoiceStrict {
		return "strict"
	}
	return "default"
}

// ParseVoicePolicy parses "default" (or "") and "strict".
func ParseVoicePolicy(s string) (VoicePolicy, bool) {
	switch s {
	case "", "default":
		return VoiceDefault, true
	case "strict":
		return VoiceStrict, true
	}
	return VoiceDefault, false
}

// Option configures a stage. Options that do not apply to a stage are
// ignored by it.
type Option func(*options)

type options struct {
	metrics  *observe.Metrics
	provider string
	breaker  *resilience.CircuitBreaker

	// stt
	opener   *audio.Opener
	language string

	// llm
	maxTokens        int
	temperature      float64
	fallback         string
	historyWindow    int
	maxContextTokens int

	// tts
	voicePolicy  VoicePolicy
	defaultVoice string
	publisher    audiostore.Publisher
}

func buildOptions(opts []Option) options {
	o := options{
		provider:    "unknown",
		opener:      &audio.Opener{},
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		fallback:    FallbackReply,
		publisher:   audiostore.DataURI{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMetrics records stage latency and provider counters to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithProviderName sets the "provider" attribute on recorded metrics.
func WithProviderName(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithBreaker guards provider calls with cb. An open breaker fails the
// stage immediately with resilience.ErrCircuitOpen inside the stage's error.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

// WithOpener sets how clips are opened. Default: a zero [audio.Opener].
func WithOpener(op *audio.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithLanguage passes a language hint to the transcription service.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithMaxTokens overrides [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithFallbackReply overrides [FallbackReply]. Empty values are ignored.
func WithFallbackReply(s string) Option {
	return func(o *options) {
		if s != "" {
			o.fallback = s
		}
	}
}

// WithHistoryWindow limits the request to the most recent n history
// messages, rounded down to whole user/assistant turns. n <= 0 means no limit.
func WithHistoryWindow(n int) Option {
	return func(o *options) { o.historyWindow = n }
}

// WithMaxContextTokens drops the oldest whole turns from the request while
// the estimated prompt exceeds n tokens. n <= 0 means no limit.
func WithMaxContextTokens(n int) Option {
	return func(o *options) { o.maxContextTokens = n }
}

// WithVoicePolicy sets the empty-voice policy. Default: [VoiceDefault].
func WithVoicePolicy(p VoicePolicy) Option {
	return func(o *options) { o.voicePolicy = p }
}

// WithDefaultVoice sets the voice used for characters without one.
func WithDefaultVoice(id string) Option {
	return func(o *options) { o.defaultVoice = id }
}

// WithPublisher sets where synthesized audio goes. Default:
// [audiostore.DataURI].
func WithPublisher(p audiostore.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// guard runs fn through the breaker, if one is configured.
func (o *options) guard(fn func() error) error {
	if o.breaker == nil {
		return fn()
	}
	return o.breaker.Execute(fn)
}

// record reports one stage call to the metrics, if configured.
func (o *options) record(ctx context.Context, stage string, start time.Time, err error) {
	if o.metrics != nil {
		o.metrics.RecordStage(ctx, stage, o.provider, time.Since(start), err)
	}
}
