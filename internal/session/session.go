// Package session holds the per-client state of a push-to-talk chat: which
// character is speaking, the recording indicator, the last text shown and
// the conversation history.
//
// A [Session] enforces the modal push-to-talk policy: while a turn is being
// processed, neither a new recording nor another turn may start. A
// [Manager] owns all live sessions and expires idle ones.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/types"
)

var (
	// ErrBusy is wrapped in a RecordingError when a session is processing.
	ErrBusy = errors.New("session: a turn is already being processed")

	// ErrNotRecording is wrapped in a RecordingError when a recording is
	// cancelled that was never started.
	ErrNotRecording = errors.New("session: not recording")

	// ErrSessionNotFound is returned by [Manager] lookups.
	ErrSessionNotFound = errors.New("session: not found")
)

// State is the push-to-talk state of a session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID               string          `json:"id"`
	CharacterID      string          `json:"character_id"`
	CharacterName    string          `json:"character_name"`
	IsRecording      bool            `json:"is_recording"`
	IsProcessing     bool            `json:"is_processing"`
	LastResponseText string          `json:"last_response_text"`
	History          []types.Message `json:"history"`
}

// Session is one client's conversation with one character.
//
// All methods are safe for concurrent use.
type Session struct {
	id     string
	char   character.Character
	runner engine.TurnRunner
	now    func() time.Time

	history History

	mu           sync.Mutex
	state        State
	lastResponse string
	lastActive   time.Time
}

// New creates an idle session. The last response starts as the character's
// greeting.
func New(id string, c character.Character, runner engine.TurnRunner) *Session {
	return newSession(id, c, runner, time.Now)
}

func newSession(id string, c character.Character, runner engine.TurnRunner, now func() time.Time) *Session {
	return &Session{
		id:           id,
		char:         c,
		runner:       runner,
		now:          now,
		lastResponse: c.Greeting,
		lastActive:   now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Character returns the character this session talks to.
func (s *Session) Character() character.Character { return s.char }

// History returns a copy of the conversation so far.
func (s *Session) History() []types.Message { return s.history.Snapshot() }

// State returns the current push-to-talk state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResponseText returns the greeting, the last reply, or the failure
// message after a failed turn.
func (s *Session) LastResponseText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// LastActive returns when the session last changed state.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// StartRecording marks the session as recording. Starting again while
// already recording is a no-op.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateProcessing {
		return &engine.RecordingError{Err: ErrBusy}
	}
	s.state = StateRecording
	s.lastActive = s.now()
	return nil
}

// CancelRecording abandons the current recording without running a turn.
func (s *Session) CancelRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateProcessing:
		return &engine.RecordingError{Err: ErrBusy}
	case StateIdle:
		return &engine.RecordingError{Err: ErrNotRecording}
	}
	s.state = StateIdle
	s.lastActive = s.now()
	return nil
}

// RunTurn stops any recording and runs one turn for clip. A turn does not
// require a prior StartRecording, since an upload implies the recording has
// stopped.
//
// The turn is detached from ctx's cancellation so a client disconnect never
// aborts a provider call halfway. On success the utterance and reply are
// appended to the history. On failure the history is left unchanged, the
// last response becomes [engine.FailureMessage] and the pipeline error is
// returned unchanged.
func (s *Session) RunTurn(ctx context.Context, clip audio.Clip) (*engine.TurnResult, error) {
	s.mu.Lock()
	if s.state == StateProcessing {
		s.mu.Unlock()
		return nil, &engine.RecordingError{Err: ErrBusy}
	}
	s.state = StateProcessing
	s.mu.Unlock()

	res, err := s.runner.RunTurn(context.WithoutCancel(ctx), clip, s.char, s.history.Snapshot())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.lastActive = s.now()
	if err != nil {
		s.lastResponse = engine.FailureMessage
		observe.Logger(ctx).Error("turn failed",
			"session_id", s.id, "character", s.char.ID, "kind", engine.Kind(err), "err", err)
		return nil, err
	}
	s.history.AppendTurn(res.Transcript, res.Text)
	s.lastResponse = res.Text
	return res, nil
}

// Snapshot returns the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.id,
		CharacterID:      s.char.ID,
		CharacterName:    s.char.Name,
		IsRecording:      s.state == StateRecording,
		IsProcessing:     s.state == StateProcessing,
		LastResponseText: s.lastResponse,
		History:          s.history.Snapshot(),
	}
}
