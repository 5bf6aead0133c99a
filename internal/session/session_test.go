package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/engine/cascade"
	"github.com/MrWong99/palchat/internal/engine/mock"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/types"
)

var mickey = character.Character{
	ID:           "mickey",
	Name:         "Mickey Mouse",
	VoiceID:      "mickey-voice",
	SystemPrompt: "You are Mickey Mouse.",
	Greeting:     "Hiya, pal!",
}

var clip = audio.Clip{URI: "/tmp/recording.m4a"}

func TestSession_StartsWithGreeting(t *testing.T) {
	t.Parallel()

	s := New("s1", mickey, &mock.TurnRunner{})
	snap := s.Snapshot()
	want := Snapshot{
		ID:               "s1",
		CharacterID:      "mickey",
		CharacterName:    "Mickey Mouse",
		LastResponseText: "Hiya, pal!",
		History:          []types.Message{},
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("want %+v, got %+v", want, snap)
	}
}

func TestSession_MickeyBrushTeeth(t *testing.T) {
	t.Parallel()

	const (
		transcript = "I don't want to brush my teeth"
		reply      = "Aw gee, brushing your teeth keeps your smile shiny! Let's be a good pal for mommy!"
		url        = "data:audio/mpeg;base64,SUQzBAAAAAAA"
	)
	orch := cascade.New(
		&mock.Transcriber{Text: transcript},
		&mock.Generator{Reply: reply},
		&mock.Synthesizer{URL: url},
	)
	s := New("s1", mickey, orch)
	if err := s.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	res, err := s.RunTurn(context.Background(), clip)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	want := engine.TurnResult{Transcript: transcript, Text: reply, AudioURL: url}
	if *res != want {
		t.Errorf("result: want %+v, got %+v", want, *res)
	}

	wantHistory := []types.Message{types.UserMessage(transcript), types.AssistantMessage(reply)}
	if got := s.History(); !reflect.DeepEqual(got, wantHistory) {
		t.Errorf("history: want %+v, got %+v", wantHistory, got)
	}
	if s.LastResponseText() != reply {
		t.Errorf("last response: got %q", s.LastResponseText())
	}
	if s.State() != StateIdle {
		t.Errorf("state: want idle, got %v", s.State())
	}
}

func TestSession_HistoryPassedToEveryTurn(t *testing.T) {
	t.Parallel()

	runner := &mock.TurnRunner{Result: &engine.TurnResult{Transcript: "hi", Text: "hello"}}
	s := New("s1", mickey, runner)
	for i := 0; i < 3; i++ {
		if _, err := s.RunTurn(context.Background(), clip); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	for i, call := range runner.Calls {
		if len(call.History) != 2*i {
			t.Errorf("turn %d: want %d history messages, got %d", i, 2*i, len(call.History))
		}
		if call.Character.ID != "mickey" {
			t.Errorf("turn %d: character %q", i, call.Character.ID)
		}
	}
	if s.History()[4].Role != types.RoleUser || s.History()[5].Role != types.RoleAssistant {
		t.Error("messages must alternate user, assistant")
	}
}

func TestSession_FailedTurn(t *testing.T) {
	t.Parallel()

	cause := &engine.SynthesisError{Err: errors.New("HTTP 401")}
	s := New("s1", mickey, &mock.TurnRunner{Err: cause})

	_, err := s.RunTurn(context.Background(), clip)
	if err != cause {
		t.Fatalf("error must be returned unchanged, got %v", err)
	}
	if s.LastResponseText() != engine.FailureMessage {
		t.Errorf("last response: want failure message, got %q", s.LastResponseText())
	}
	if s.History() == nil || len(s.History()) != 0 {
		t.Errorf("history must stay empty, got %+v", s.History())
	}
	if s.State() != StateIdle {
		t.Errorf("state: want idle, got %v", s.State())
	}
}

func TestSession_TurnIgnoresCancellation(t *testing.T) {
	t.Parallel()

	runner := &mock.TurnRunner{}
	s := New("s1", mickey, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RunTurn(ctx, clip); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if err := runner.Calls[0].Ctx.Err(); err != nil {
		t.Errorf("runner context must not be cancelled, got %v", err)
	}
}

func TestSession_BusyWhileProcessing(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := &mock.TurnRunner{Block: block, Started: started, Result: &engine.TurnResult{Text: "ok"}}
	s := New("s1", mickey, runner)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.RunTurn(context.Background(), clip); err != nil {
			t.Errorf("first turn: %v", err)
		}
	}()
	<-started

	snap := s.Snapshot()
	if !snap.IsProcessing || snap.IsRecording {
		t.Errorf("snapshot while processing: %+v", snap)
	}

	checks := map[string]func() error{
		"start recording":  s.StartRecording,
		"cancel recording": s.CancelRecording,
		"second turn": func() error {
			_, err := s.RunTurn(context.Background(), clip)
			return err
		},
	}
	for name, fn := range checks {
		err := fn()
		if !engine.IsRecording(err) || !errors.Is(err, ErrBusy) {
			t.Errorf("%s: want RecordingError wrapping ErrBusy, got %v", name, err)
		}
	}

	close(block)
	wg.Wait()
	if runner.CallCount() != 1 {
		t.Errorf("runner calls: want 1, got %d", runner.CallCount())
	}
	if err := s.StartRecording(); err != nil {
		t.Errorf("recording after the turn: %v", err)
	}
}

func TestSession_RecordingTransitions(t *testing.T) {
	t.Parallel()

	s := New("s1", mickey, &mock.TurnRunner{})

	err := s.CancelRecording()
	if !engine.IsRecording(err) || !errors.Is(err, ErrNotRecording) {
		t.Fatalf("cancel while idle: want ErrNotRecording, got %v", err)
	}

	if err := s.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if err := s.StartRecording(); err != nil {
		t.Fatalf("second start must be a no-op, got %v", err)
	}
	if !s.Snapshot().IsRecording {
		t.Error("want is_recording")
	}
	if err := s.CancelRecording(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdle {
		t.Errorf("want idle, got %v", s.State())
	}
}

func TestSession_LastActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newSession("s1", mickey, &mock.TurnRunner{}, clock)
	if !s.LastActive().Equal(now) {
		t.Fatalf("created: want %v, got %v", now, s.LastActive())
	}

	now = now.Add(time.Minute)
	_ = s.StartRecording()
	if !s.LastActive().Equal(now) {
		t.Errorf("after recording: want %v, got %v", now, s.LastActive())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateRecording:  "recording",
		StateProcessing: "processing",
		State(7):        "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d): want %q, got %q", int(s), want, got)
		}
	}
}
