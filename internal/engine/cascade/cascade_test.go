package cascade_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/engine/cascade"
	"github.com/MrWong99/palchat/internal/engine/mock"
	"github.com/MrWong99/palchat/pkg/audio"
	"github.com/MrWong99/palchat/pkg/provider/llm"
	llmmock "github.com/MrWong99/palchat/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/palchat/pkg/provider/stt/mock"
	"github.com/MrWong99/palchat/pkg/provider/tts"
	ttsmock "github.com/MrWong99/palchat/pkg/provider/tts/mock"
	"github.com/MrWong99/palchat/pkg/types"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

var (
	mickey = character.Character{
		ID:           "mickey",
		Name:         "Mickey Mouse",
		VoiceID:      "voice-mickey",
		SystemPrompt: "You are Mickey Mouse talking to a young child.",
		Greeting:     "Oh boy!",
	}
	elsa = character.Character{
		ID:           "elsa",
		Name:         "Elsa",
		VoiceID:      "voice-elsa",
		SystemPrompt: "You are Queen Elsa talking to a young child.",
	}
)

const (
	teethTranscript = "I don't want to brush my teeth"
	teethReply      = "Aw gee, brushing your teeth keeps your smile shiny! Let's be a good pal for mommy!"
	fixedDataURI    = "data:audio/mpeg;base64,SUQzBAAAAAAAI1RTU0UAAAAPAAADTGF2ZjU4Ljc2LjEwMAAAAAAAAAAAAAAA"
)

// writeClip creates a non-empty recording on disk and returns its clip.
func writeClip(t *testing.T) audio.Clip {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.m4a")
	if err := os.WriteFile(path, []byte("fake-m4a-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return audio.Clip{URI: path}
}

type stubs struct {
	stt *mock.Transcriber
	gen *mock.Generator
	tts *mock.Synthesizer
}

func newStubs() stubs {
	return stubs{
		stt: &mock.Transcriber{Text: teethTranscript},
		gen: &mock.Generator{Reply: teethReply},
		tts: &mock.Synthesizer{URL: fixedDataURI},
	}
}

func (s stubs) orchestrator() *cascade.Orchestrator {
	return cascade.New(s.stt, s.gen, s.tts)
}

// ─── ordering and data flow ──────────────────────────────────────────────────

func TestRunTurn_GeneratesFromTranscriptExactlyOnce(t *testing.T) {
	t.Parallel()

	s := newStubs()
	clip := audio.Clip{URI: "file:///tmp/clip.m4a"}
	if _, err := s.orchestrator().RunTurn(context.Background(), clip, mickey, nil); err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}

	if got := s.stt.Clips; len(got) != 1 || got[0] != clip {
		t.Errorf("transcriber clips: want [%v], got %v", clip, got)
	}
	if s.gen.CallCount() != 1 {
		t.Fatalf("generate calls: want 1, got %d", s.gen.CallCount())
	}
	if got := s.gen.Calls[0].Utterance; got != teethTranscript {
		t.Errorf("utterance: want transcript %q, got %q", teethTranscript, got)
	}
}

func TestRunTurn_SynthesizesReplyWithCharacterVoice(t *testing.T) {
	t.Parallel()

	s := newStubs()
	if _, err := s.orchestrator().RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, mickey, nil); err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}
	want := []mock.SynthesizeCall{{Text: teethReply, VoiceID: "voice-mickey"}}
	if !reflect.DeepEqual(s.tts.Calls, want) {
		t.Errorf("synthesize calls: want %+v, got %+v", want, s.tts.Calls)
	}
}

// The orchestrator forwards an empty voice unchanged; the voice policy lives
// in the synthesizer.
func TestRunTurn_EmptyVoiceForwarded(t *testing.T) {
	t.Parallel()

	s := newStubs()
	noVoice := elsa
	noVoice.VoiceID = ""
	if _, err := s.orchestrator().RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, noVoice, nil); err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}
	if s.tts.Calls[0].VoiceID != "" {
		t.Errorf("voice: want empty, got %q", s.tts.Calls[0].VoiceID)
	}
}

func TestRunTurn_HistoryIsNotMutated(t *testing.T) {
	t.Parallel()

	history := []types.Message{
		types.UserMessage("Hi Mickey"),
		types.AssistantMessage("Hiya, pal!"),
	}
	snapshot := append([]types.Message(nil), history...)

	s := newStubs()
	if _, err := s.orchestrator().RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, mickey, history); err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}
	if !reflect.DeepEqual(history, snapshot) {
		t.Errorf("history mutated: %+v", history)
	}
	if !reflect.DeepEqual(s.gen.Calls[0].History, snapshot) {
		t.Errorf("generator history: want %+v, got %+v", snapshot, s.gen.Calls[0].History)
	}
}

// ─── failure propagation ─────────────────────────────────────────────────────

func TestRunTurn_StageFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	cause := errors.New("HTTP 401: invalid api key")
	tests := []struct {
		name      string
		arrange   func(s stubs)
		is        func(error) bool
		wantCalls [3]int
	}{
		{
			name:      "transcription",
			arrange:   func(s stubs) { s.stt.Err = &engine.TranscriptionError{Err: cause} },
			is:        engine.IsTranscription,
			wantCalls: [3]int{1, 0, 0},
		},
		{
			name:      "generation",
			arrange:   func(s stubs) { s.gen.Err = &engine.GenerationError{Err: cause} },
			is:        engine.IsGeneration,
			wantCalls: [3]int{1, 1, 0},
		},
		{
			name:      "synthesis",
			arrange:   func(s stubs) { s.tts.Err = &engine.SynthesisError{Err: cause} },
			is:        engine.IsSynthesis,
			wantCalls: [3]int{1, 1, 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStubs()
			tc.arrange(s)
			res, err := s.orchestrator().RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, mickey, nil)
			if res != nil {
				t.Errorf("want no result, got %+v", res)
			}
			if !tc.is(err) {
				t.Fatalf("want %s error, got %T: %v", tc.name, err, err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("cause lost: %v", err)
			}
			if engine.Kind(err) != tc.name {
				t.Errorf("Kind: want %q, got %q", tc.name, engine.Kind(err))
			}
			got := [3]int{s.stt.CallCount(), s.gen.CallCount(), s.tts.CallCount()}
			if got != tc.wantCalls {
				t.Errorf("stage calls (stt, llm, tts): want %v, got %v", tc.wantCalls, got)
			}
		})
	}
}

// The orchestrator returns the stage's error value itself, not a wrapper.
func TestRunTurn_ErrorReturnedUnchanged(t *testing.T) {
	t.Parallel()

	s := newStubs()
	stageErr := &engine.GenerationError{Err: errors.New("quota exceeded")}
	s.gen.Err = stageErr

	_, err := s.orchestrator().RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, mickey, nil)
	if err != stageErr {
		t.Errorf("want the generator's error value, got %v", err)
	}
	if engine.IsTranscription(err) || engine.IsSynthesis(err) {
		t.Error("error must not be reclassified")
	}
}

// ─── end-to-end scenarios ────────────────────────────────────────────────────

func TestRunTurn_MickeyBrushTeeth(t *testing.T) {
	t.Parallel()

	s := newStubs()
	var history []types.Message

	res, err := s.orchestrator().RunTurn(context.Background(), writeClip(t), mickey, history)
	if err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}
	want := engine.TurnResult{
		Transcript: teethTranscript,
		Text:       teethReply,
		AudioURL:   fixedDataURI,
	}
	if *res != want {
		t.Errorf("result: want %+v, got %+v", want, *res)
	}

	// The caller appends the turn.
	history = append(history, types.UserMessage(res.Transcript), types.AssistantMessage(res.Text))
	wantHistory := []types.Message{
		{Role: types.RoleUser, Content: teethTranscript},
		{Role: types.RoleAssistant, Content: teethReply},
	}
	if !reflect.DeepEqual(history, wantHistory) {
		t.Errorf("history: want %+v, got %+v", wantHistory, history)
	}
}

func TestRunTurn_PersonaSwitch(t *testing.T) {
	t.Parallel()

	history := []types.Message{types.UserMessage("hello"), types.AssistantMessage("hi")}

	s := newStubs()
	o := s.orchestrator()
	for _, c := range []character.Character{mickey, elsa} {
		if _, err := o.RunTurn(context.Background(), audio.Clip{URI: "x.m4a"}, c, history); err != nil {
			t.Fatalf("RunTurn(%s): unexpected error: %v", c.ID, err)
		}
	}

	if s.gen.Calls[0].Character.SystemPrompt == s.gen.Calls[1].Character.SystemPrompt {
		t.Error("personas must produce distinct system prompts")
	}
	if s.gen.Calls[1].Character.SystemPrompt != elsa.SystemPrompt {
		t.Errorf("second call: want elsa's prompt, got %q", s.gen.Calls[1].Character.SystemPrompt)
	}
	if s.tts.Calls[0].VoiceID != "voice-mickey" || s.tts.Calls[1].VoiceID != "voice-elsa" {
		t.Errorf("voices: got %q then %q", s.tts.Calls[0].VoiceID, s.tts.Calls[1].VoiceID)
	}
	if s.gen.Calls[0].Utterance != s.gen.Calls[1].Utterance {
		t.Error("same transcript expected for both personas")
	}
}

// TestRunTurn_ProviderStack runs the real stages over provider mocks and
// checks the exact wire-level requests.
func TestRunTurn_ProviderStack(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{Result: types.Transcript{Text: teethTranscript}}
	llmP := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: teethReply}}
	ttsP := &ttsmock.Provider{Result: &tts.Audio{Data: []byte("ID3"), MIMEType: "audio/mpeg"}}

	o := cascade.New(
		engine.NewSTTTranscriber(sttP),
		engine.NewLLMGenerator(llmP),
		engine.NewTTSSynthesizer(ttsP),
	)

	history := []types.Message{
		types.UserMessage("Can I have candy?"),
		types.AssistantMessage("Gosh, let's ask your mommy first!"),
	}
	res, err := o.RunTurn(context.Background(), writeClip(t), mickey, history)
	if err != nil {
		t.Fatalf("RunTurn: unexpected error: %v", err)
	}
	if res.AudioURL != "data:audio/mpeg;base64,SUQz" {
		t.Errorf("audio url: got %q", res.AudioURL)
	}

	if sttP.CallCount() != 1 || string(sttP.Calls[0].Audio) != "fake-m4a-bytes" {
		t.Errorf("unexpected stt calls: %+v", sttP.Calls)
	}
	if sttP.Calls[0].Filename != "recording.m4a" || sttP.Calls[0].ContentType != "audio/mp4" {
		t.Errorf("upload metadata: %q %q", sttP.Calls[0].Filename, sttP.Calls[0].ContentType)
	}

	calls := llmP.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls: want 1, got %d", len(calls))
	}
	wantMsgs := []types.Message{
		types.SystemMessage(mickey.SystemPrompt),
		history[0],
		history[1],
		types.UserMessage(teethTranscript),
	}
	if !reflect.DeepEqual(calls[0].Req.Messages, wantMsgs) {
		t.Errorf("messages:\nwant %+v\ngot  %+v", wantMsgs, calls[0].Req.Messages)
	}
	if calls[0].Req.MaxTokens != 150 || calls[0].Req.Temperature != 0.7 {
		t.Errorf("params: max_tokens=%d temperature=%v", calls[0].Req.MaxTokens, calls[0].Req.Temperature)
	}

	ttsCalls := ttsP.Calls()
	if len(ttsCalls) != 1 || ttsCalls[0].Req != (tts.Request{Text: teethReply, VoiceID: "voice-mickey"}) {
		t.Errorf("unexpected tts calls: %+v", ttsCalls)
	}
}

func TestRunTurn_MissingClipIsTranscription(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}
	o := cascade.New(engine.NewSTTTranscriber(sttP), engine.NewLLMGenerator(llmP), engine.NewTTSSynthesizer(ttsP))

	_, err := o.RunTurn(context.Background(), audio.Clip{URI: filepath.Join(t.TempDir(), "gone.m4a")}, mickey, nil)
	if !engine.IsTranscription(err) {
		t.Fatalf("want TranscriptionError, got %v", err)
	}
	if sttP.CallCount() != 0 || len(llmP.Calls()) != 0 || len(ttsP.Calls()) != 0 {
		t.Error("no provider may be called for an unreachable clip")
	}
}
