// Package mock provides in-memory stand-ins for the engine stage interfaces
// and [engine.TurnRunner], for use in unit tests.
//
// Every mock records its calls and returns the values configured in its
// exported fields. All are safe for concurrent use.
//
// Example:
//
//	stt := &mock.Transcriber{Text: "I don't want to brush my teeth"}
//	gen := &mock.Generator{Reply: "Aw gee!"}
//	tts := &mock.Synthesizer{URL: "data:audio/mpeg;base64,AAAA"}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/types"
)

var (
	_ engine.Transcriber = (*Transcriber)(nil)
	_ engine.Generator   = (*Generator)(nil)
	_ engine.Synthesizer = (*Synthesizer)(nil)
	_ engine.TurnRunner  = (*TurnRunner)(nil)
)

// Transcriber is a mock [engine.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string
	// Err, if non-nil, is returned instead.
	Err error

	// Clips records the clip of every call.
	Clips []audio.Clip
}

// Transcribe records the call and returns Text, Err.
func (m *Transcriber) Transcribe(_ context.Context, clip audio.Clip) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Clips = append(m.Clips, clip)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Clips)
}

// GenerateCall records one Generate invocation.
type GenerateCall struct {
	Character character.Character
	Utterance string
	// History is a copy of the slice passed in.
	History []types.Message
}

// Generator is a mock [engine.Generator].
type Generator struct {
	mu sync.Mutex

	// Reply is returned by Generate.
	Reply string
	// Err, if non-nil, is returned instead.
	Err error

	Calls []GenerateCall
}

// Generate records the call and returns Reply, Err.
func (m *Generator) Generate(_ context.Context, c character.Character, utterance string, history []types.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := make([]types.Message, len(history))
	copy(h, history)
	m.Calls = append(m.Calls, GenerateCall{Character: c, Utterance: utterance, History: h})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// CallCount returns the number of Generate calls.
func (m *Generator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// SynthesizeCall records one Synthesize invocation.
type SynthesizeCall struct {
	Text    string
	VoiceID string
}

// Synthesizer is a mock [engine.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// URL is returned by Synthesize.
	URL string
	// Err, if non-nil, is returned instead.
	Err error

	Calls []SynthesizeCall
}

// Synthesize records the call and returns URL, Err.
func (m *Synthesizer) Synthesize(_ context.Context, text, voiceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, SynthesizeCall{Text: text, VoiceID: voiceID})
	if m.Err != nil {
		return "", m.Err
	}
	return m.URL, nil
}

// CallCount returns the number of Synthesize calls.
func (m *Synthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// RunTurnCall records one RunTurn invocation.
type RunTurnCall struct {
	Ctx       context.Context
	Clip      audio.Clip
	Character character.Character
	// History is a copy of the slice passed in.
	History []types.Message
}

// TurnRunner is a mock [engine.TurnRunner].
type TurnRunner struct {
	mu sync.Mutex

	// Result is returned by RunTurn.
	Result *engine.TurnResult
	// Err, if non-nil, is returned instead.
	Err error
	// Block, if non-nil, is waited on before returning.
	Block <-chan struct{}
	// Started, if non-nil, receives one value when RunTurn begins.
	Started chan<- struct{}

	Calls []RunTurnCall
}

// RunTurn records the call, optionally blocks, and returns Result, Err.
func (m *TurnRunner) RunTurn(ctx context.Context, clip audio.Clip, c character.Character, history []types.Message) (*engine.TurnResult, error) {
	h := make([]types.Message, len(history))
	copy(h, history)
	m.mu.Lock()
	m.Calls = append(m.Calls, RunTurnCall{Ctx: ctx, Clip: clip, Character: c, History: h})
	block, started := m.Block, m.Started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result == nil {
		return &engine.TurnResult{}, nil
	}
	r := *m.Result
	return &r, nil
}

// CallCount returns the number of RunTurn calls.
func (m *TurnRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
