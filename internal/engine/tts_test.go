package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/palchat/internal/resilience"
	"github.com/MrWong99/palchat/pkg/provider/tts"
	ttsmock "github.com/MrWong99/palchat/pkg/provider/tts/mock"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, *tts.Audio) (string, error) { return "", f.err }

type fixedPublisher string

func (f fixedPublisher) Publish(context.Context, *tts.Audio) (string, error) { return string(f), nil }

func mp3() *tts.Audio { return &tts.Audio{Data: []byte("ID3"), MIMEType: "audio/mpeg"} }

func TestTTSSynthesizer_DataURI(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Result: mp3()}
	url, err := NewTTSSynthesizer(p).Synthesize(context.Background(), "Ha-ha!", "mickey-voice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "data:audio/mpeg;base64,SUQz" {
		t.Errorf("url: got %q", url)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Req.Text != "Ha-ha!" || calls[0].Req.VoiceID != "mickey-voice" {
		t.Errorf("unexpected provider calls: %+v", calls)
	}
}

func TestTTSSynthesizer_VoicePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		voice     string
		opts      []Option
		wantVoice string
		wantErr   error
	}{
		{name: "own voice wins", voice: "v1", opts: []Option{WithDefaultVoice("dflt")}, wantVoice: "v1"},
		{name: "default substituted", voice: "", opts: []Option{WithDefaultVoice("dflt")}, wantVoice: "dflt"},
		{name: "empty forwarded without default", voice: "", wantVoice: ""},
		{name: "strict keeps own voice", voice: "v1", opts: []Option{WithVoicePolicy(VoiceStrict)}, wantVoice: "v1"},
		{name: "strict rejects empty", voice: "", opts: []Option{WithVoicePolicy(VoiceStrict), WithDefaultVoice("dflt")}, wantErr: ErrNoVoice},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := &ttsmock.Provider{Result: mp3()}
			_, err := NewTTSSynthesizer(p, tc.opts...).Synthesize(context.Background(), "hi", tc.voice)
			if tc.wantErr != nil {
				if !IsSynthesis(err) || !errors.Is(err, tc.wantErr) {
					t.Fatalf("want SynthesisError wrapping %v, got %v", tc.wantErr, err)
				}
				if len(p.Calls()) != 0 {
					t.Error("provider must not be called")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := p.Calls()[0].Req.VoiceID; got != tc.wantVoice {
				t.Errorf("voice: want %q, got %q", tc.wantVoice, got)
			}
		})
	}
}

func TestTTSSynthesizer_Errors(t *testing.T) {
	t.Parallel()

	upstream := errors.New("HTTP 401")
	published := errors.New("bucket unavailable")
	tests := []struct {
		name string
		p    *ttsmock.Provider
		opts []Option
		want error
	}{
		{name: "provider failure", p: &ttsmock.Provider{Err: upstream}, want: upstream},
		{name: "publish failure", p: &ttsmock.Provider{Result: mp3()}, opts: []Option{WithPublisher(failingPublisher{published})}, want: published},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewTTSSynthesizer(tc.p, tc.opts...).Synthesize(context.Background(), "hi", "v")
			if !IsSynthesis(err) || !errors.Is(err, tc.want) {
				t.Fatalf("want SynthesisError wrapping %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTTSSynthesizer_EmptyAudioIsAnError(t *testing.T) {
	t.Parallel()

	_, err := NewTTSSynthesizer(&ttsmock.Provider{Result: &tts.Audio{}}).Synthesize(context.Background(), "hi", "v")
	if !IsSynthesis(err) {
		t.Fatalf("want SynthesisError, got %v", err)
	}
}

func TestTTSSynthesizer_CustomPublisher(t *testing.T) {
	t.Parallel()

	s := NewTTSSynthesizer(&ttsmock.Provider{Result: mp3()}, WithPublisher(fixedPublisher("https://cdn.example/a.mp3")))
	url, err := s.Synthesize(context.Background(), "hi", "v")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/a.mp3" {
		t.Errorf("url: got %q", url)
	}
}

func TestTTSSynthesizer_OpenBreakerFailsFast(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(func() error { return errors.New("boom") })

	p := &ttsmock.Provider{Result: mp3()}
	_, err := NewTTSSynthesizer(p, WithBreaker(cb)).Synthesize(context.Background(), "hi", "v")
	if !IsSynthesis(err) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("want SynthesisError wrapping ErrCircuitOpen, got %v", err)
	}
	if len(p.Calls()) != 0 {
		t.Error("provider must not be called while the breaker is open")
	}
}
