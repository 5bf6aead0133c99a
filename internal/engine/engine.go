// Package engine defines the three stages of a conversation turn and their
// provider-backed implementations.
//
// A turn is transcribe → generate → synthesize. Each stage is an interface
// ([Transcriber], [Generator], [Synthesizer]) so that the orchestrator in
// engine/cascade stays provider-agnostic and tests can substitute stubs.
// The provider-backed stages ([STTTranscriber], [LLMGenerator],
// [TTSSynthesizer]) own the fixed request parameters and translate every
// failure into the stage's typed error: [TranscriptionError],
// [GenerationError] or [SynthesisError]. No stage retries.
//
// Stages hold only read-only configuration and are safe for concurrent use.
package engine

import (
	"context"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/types"
)

const (
	// DefaultMaxTokens caps the length of a generated reply.
	DefaultMaxTokens = 150

	// DefaultTemperature is the sampling temperature for replies.
	DefaultTemperature = 0.7

	// FallbackReply is returned by the generator when the model produced no
	// usable text.
	FallbackReply = "Oh gosh, I didn't catch that!"

	// FailureMessage is what a user sees when a turn fails for any reason.
	FailureMessage = "Oh gosh, something went wrong! Try again, pal!"
)

// Transcriber turns a recorded clip into text.
type Transcriber interface {
	// Transcribe returns the recognized text verbatim. Failures are
	// *TranscriptionError.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// Generator produces one in-character reply.
type Generator interface {
	// Generate sends [system] ++ history ++ [user: utterance] to the model
	// and returns non-empty reply text. history is read, never modified.
	// Failures are *GenerationError.
	Generate(ctx context.Context, c character.Character, utterance string, history []types.Message) (string, error)
}

// Synthesizer turns reply text into a playable audio URL.
type Synthesizer interface {
	// Synthesize speaks text with voiceID and returns a URL for the audio,
	// by default a data: URI. Failures are *SynthesisError.
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

// TurnResult is the output of one successful turn.
type TurnResult struct {
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
	AudioURL   string `json:"audioUrl"`
}

// TurnRunner runs complete turns. It is implemented by cascade.Orchestrator.
type TurnRunner interface {
	RunTurn(ctx context.Context, clip audio.Clip, c character.Character, history []types.Message) (*TurnResult, error)
}
