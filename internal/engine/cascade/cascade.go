// Package cascade runs one conversation turn as a strict three-stage cascade:
//
//  1. transcribe the recorded clip,
//  2. generate an in-character reply from the transcript and the history,
//  3. synthesize the reply with the character's voice.
//
// Each stage consumes the previous stage's output, so the stages never
// overlap. The first failure aborts the turn: later stages are not invoked,
// no partial result is returned, and the stage's typed error reaches the
// caller unchanged. The orchestrator adds no retries and no timeouts of its
// own; deadlines come from ctx and the providers' HTTP clients.
package cascade

import (
	"context"
	"time"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/types"
)

// Orchestrator implements [engine.TurnRunner]. It holds no mutable state and
// is safe for concurrent use; serialising turns of one conversation is the
// caller's job.
type Orchestrator struct {
	stt     engine.Transcriber
	gen     engine.Generator
	tts     engine.Synthesizer
	metrics *observe.Metrics
}

var _ engine.TurnRunner = (*Orchestrator)(nil)

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records turn latency and outcome to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New constructs an Orchestrator from the three stages.
func New(stt engine.Transcriber, gen engine.Generator, tts engine.Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{stt: stt, gen: gen, tts: tts}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn transcribes clip, generates c's reply with history as context and
// synthesizes it with c.VoiceID. history is only read; appending the new
// user/assistant pair is up to the caller.
func (o *Orchestrator) RunTurn(ctx context.Context, clip audio.Clip, c character.Character, history []types.Message) (result *engine.TurnResult, err error) {
	ctx, span := observe.StartTurn(ctx, c.ID, len(history))
	start := time.Now()
	defer func() {
		o.record(ctx, c.ID, start, err)
		observe.EndSpan(span, err)
	}()
	log := observe.Logger(ctx).With("character", c.ID)

	transcript, err := o.stt.Transcribe(ctx, clip)
	if err != nil {
		log.Error("turn failed", "stage", "transcription", "err", err)
		return nil, err
	}

	reply, err := o.gen.Generate(ctx, c, transcript, history)
	if err != nil {
		log.Error("turn failed", "stage", "generation", "err", err)
		return nil, err
	}

	audioURL, err := o.tts.Synthesize(ctx, reply, c.VoiceID)
	if err != nil {
		log.Error("turn failed", "stage", "synthesis", "err", err)
		return nil, err
	}

	log.Info("turn completed",
		"transcript_chars", len(transcript),
		"reply_chars", len(reply),
		"duration", time.Since(start),
	)
	return &engine.TurnResult{
		Transcript: transcript,
		Text:       reply,
		AudioURL:   audioURL,
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, characterID string, start time.Time, err error) {
	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, characterID, time.Since(start), err)
	}
}
