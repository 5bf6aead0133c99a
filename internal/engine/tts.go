package engine

import (
	"context"
	"time"

	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// TTSSynthesizer implements [Synthesizer] over a [tts.Provider].
type TTSSynthesizer struct {
	provider tts.Provider
	opts     options
}

// NewTTSSynthesizer wraps p. Relevant options: WithVoicePolicy,
// WithDefaultVoice, WithPublisher, WithMetrics, WithProviderName,
// WithBreaker.
func NewTTSSynthesizer(p tts.Provider, opts ...Option) *TTSSynthesizer {
	return &TTSSynthesizer{provider: p, opts: buildOptions(opts)}
}

// Synthesize speaks text and publishes the audio.
func (s *TTSSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (url string, err error) {
	ctx, span := observe.StartStage(ctx, observe.StageTTS, s.opts.provider)
	start := time.Now()
	defer func() {
		s.opts.record(ctx, observe.StageTTS, start, err)
		observe.EndSpan(span, err)
	}()

	voice, err := s.resolveVoice(voiceID)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	var a *tts.Audio
	err = s.opts.guard(func() error {
		var err error
		a, err = s.provider.Synthesize(ctx, tts.Request{Text: text, VoiceID: voice})
		return err
	})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	url, err = s.opts.publisher.Publish(ctx, a)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	return url, nil
}

// resolveVoice applies the voice policy to an empty voice ID.
func (s *TTSSynthesizer) resolveVoice(voiceID string) (string, error) {
	switch {
	case voiceID != "":
		return voiceID, nil
	case s.opts.voicePolicy == VoiceStrict:
		return "", ErrNoVoice
	default:
		return s.opts.defaultVoice, nil
	}
}

var _ Synthesizer = (*TTSSynthesizer)(nil)
