package engine

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/palchat/internal/resilience"
	"github.com/MrWong99/palchat/pkg/audio"
	sttmock "github.com/MrWong99/palchat/pkg/provider/stt/mock"
	"github.com/MrWong99/palchat/pkg/types"
)

func TestSTTTranscriber_UploadsClip(t *testing.T) {
	t.Parallel()

	path := writeClip(t, "recording.m4a", []byte("fake-m4a"))
	p := &sttmock.Provider{Result: types.Transcript{Text: "  Hi Mickey!  "}}
	tr := NewSTTTranscriber(p, WithLanguage("en"))

	text, err := tr.Transcribe(context.Background(), audio.Clip{URI: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "  Hi Mickey!  " {
		t.Errorf("text must be returned verbatim, got %q", text)
	}

	if p.CallCount() != 1 {
		t.Fatalf("want 1 provider call, got %d", p.CallCount())
	}
	call := p.Calls[0]
	if call.Filename != "recording.m4a" {
		t.Errorf("filename: want recording.m4a, got %q", call.Filename)
	}
	if call.ContentType != "audio/mp4" {
		t.Errorf("content type: want audio/mp4, got %q", call.ContentType)
	}
	if call.Language != "en" {
		t.Errorf("language: want en, got %q", call.Language)
	}
	if string(call.Audio) != "fake-m4a" {
		t.Errorf("audio: want the clip bytes, got %q", call.Audio)
	}
}

func TestSTTTranscriber_EmptyTranscriptIsNotAnError(t *testing.T) {
	t.Parallel()

	tr := NewSTTTranscriber(&sttmock.Provider{})
	text, err := tr.Transcribe(context.Background(), audio.Clip{URI: writeClip(t, "a.wav", []byte("RIFF"))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Errorf("want empty text, got %q", text)
	}
}

func TestSTTTranscriber_Errors(t *testing.T) {
	t.Parallel()

	upstream := errors.New("HTTP 500")
	tests := []struct {
		name      string
		clip      audio.Clip
		err       error
		wantCalls int
	}{
		{name: "empty uri", clip: audio.Clip{}, wantCalls: 0},
		{name: "missing file", clip: audio.Clip{URI: "/does/not/exist.m4a"}, wantCalls: 0},
		{name: "unsupported scheme", clip: audio.Clip{URI: "ftp://host/a.m4a"}, wantCalls: 0},
		{name: "provider failure", err: upstream, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clip := tc.clip
			if tc.err != nil {
				clip = audio.Clip{URI: writeClip(t, "a.m4a", []byte("x"))}
			}
			p := &sttmock.Provider{Err: tc.err}
			_, err := NewSTTTranscriber(p).Transcribe(context.Background(), clip)
			if !IsTranscription(err) {
				t.Fatalf("want TranscriptionError, got %T: %v", err, err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("cause not preserved: %v", err)
			}
			if p.CallCount() != tc.wantCalls {
				t.Errorf("provider calls: want %d, got %d", tc.wantCalls, p.CallCount())
			}
		})
	}
}

func TestSTTTranscriber_OpenBreakerFailsFast(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "stt/test", MaxFailures: 1})
	_ = cb.Execute(func() error { return errors.New("boom") })

	p := &sttmock.Provider{}
	_, err := NewSTTTranscriber(p, WithBreaker(cb)).Transcribe(context.Background(), audio.Clip{URI: writeClip(t, "a.m4a", []byte("x"))})
	if !IsTranscription(err) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("want TranscriptionError wrapping ErrCircuitOpen, got %v", err)
	}
	if p.CallCount() != 0 {
		t.Errorf("provider must not be called while the breaker is open")
	}
}

func TestSTTTranscriber_RecordsMetrics(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	path := writeClip(t, "a.m4a", []byte("x"))

	ok := NewSTTTranscriber(&sttmock.Provider{}, WithMetrics(m), WithProviderName("openai"))
	if _, err := ok.Transcribe(context.Background(), audio.Clip{URI: path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := NewSTTTranscriber(&sttmock.Provider{Err: errors.New("down")}, WithMetrics(m), WithProviderName("openai"))
	_, _ = bad.Transcribe(context.Background(), audio.Clip{URI: path})

	provider := attribute.String("provider", "openai")
	kind := attribute.String("kind", "stt")
	if got := counterValue(t, reader, "palchat.provider.requests", provider, kind, attribute.String("status", "ok")); got != 1 {
		t.Errorf("ok requests: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "palchat.provider.requests", provider, kind, attribute.String("status", "error")); got != 1 {
		t.Errorf("error requests: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "palchat.provider.errors", provider, kind); got != 1 {
		t.Errorf("errors: want 1, got %d", got)
	}
}
