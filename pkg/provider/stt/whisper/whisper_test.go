package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/palchat/pkg/provider/stt"
	"github.com/MrWong99/palchat/pkg/provider/stt/whisper"
)

// upload is what the fake server saw in one request.
type upload struct {
	filename string
	audio    string
	language string
	model    string
}

// newMockServer answers POST /inference with responseText and reports each
// parsed upload on the returned channel.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, <-chan upload) {
	t.Helper()
	uploads := make(chan upload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		uploads <- upload{
			filename: hdr.Filename,
			audio:    string(data),
			language: r.FormValue("language"),
			model:    r.FormValue("model"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, uploads
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_ReturnsTextVerbatim(t *testing.T) {
	t.Parallel()

	const text = "  I don't want to brush my teeth  "
	srv, uploads := newMockServer(t, text)
	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("en"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    strings.NewReader("wav-bytes"),
		Filename: "turn.wav",
	})
	if err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}
	if tr.Text != text {
		t.Errorf("text: want %q, got %q", text, tr.Text)
	}

	got := <-uploads
	if got.filename != "turn.wav" {
		t.Errorf("filename: want turn.wav, got %q", got.filename)
	}
	if got.audio != "wav-bytes" {
		t.Errorf("audio: want %q, got %q", "wav-bytes", got.audio)
	}
	if got.language != "en" {
		t.Errorf("language: want en, got %q", got.language)
	}
	if got.model != "base.en" {
		t.Errorf("model: want base.en, got %q", got.model)
	}
}

func TestTranscribe_RequestLanguageOverrides(t *testing.T) {
	t.Parallel()

	srv, uploads := newMockServer(t, "hallo")
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: strings.NewReader("x"), Language: "de"}); err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}
	got := <-uploads
	if got.language != "de" {
		t.Errorf("language: want de, got %q", got.language)
	}
	if got.filename != "audio.wav" {
		t.Errorf("default filename: want audio.wav, got %q", got.filename)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: strings.NewReader("x")})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("requests: want 1, got %d", n)
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestTranscribe_NoAudio(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error for missing audio")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv, _ := newMockServer(t, "x")
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
