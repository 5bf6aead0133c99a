package engine

import (
	"context"
	"time"

	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/provider/stt"
)

// STTTranscriber implements [Transcriber] over an [stt.Provider].
type STTTranscriber struct {
	provider stt.Provider
	opts     options
}

// NewSTTTranscriber wraps p. Relevant options: WithOpener, WithLanguage,
// WithMetrics, WithProviderName, WithBreaker.
func NewSTTTranscriber(p stt.Provider, opts ...Option) *STTTranscriber {
	return &STTTranscriber{provider: p, opts: buildOptions(opts)}
}

// Transcribe opens clip, uploads it and returns the text unmodified.
func (t *STTTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (text string, err error) {
	ctx, span := observe.StartStage(ctx, observe.StageSTT, t.opts.provider)
	start := time.Now()
	defer func() {
		t.opts.record(ctx, observe.StageSTT, start, err)
		observe.EndSpan(span, err)
	}()

	rc, err := t.opts.opener.Open(ctx, clip)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	defer rc.Close()

	err = t.opts.guard(func() error {
		tr, err := t.provider.Transcribe(ctx, stt.Request{
			Audio:       rc,
			Filename:    clip.Filename(),
			ContentType: clip.ContentType(),
			Language:    t.opts.language,
		})
		text = tr.Text
		return err
	})
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	observe.Logger(ctx).Debug("transcribed clip", "filename", clip.Filename(), "chars", len(text))
	return text, nil
}

var _ Transcriber = (*STTTranscriber)(nil)
