// Package coqui speaks replies through a self-hosted Coqui TTS server.
//
// APIModeStandard targets the stock server image (ghcr.io/coqui-ai/tts-cpu):
// GET /api/tts for synthesis and GET /details for voices. APIModeXTTS
// targets the XTTS v2 API server: POST /tts_to_audio/ and GET
// /studio_speakers. Either way the server answers with a WAV file, which is
// passed on unchanged.
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/palchat/pkg/provider/tts"
	"github.com/MrWong99/palchat/pkg/types"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	mimeWAV         = "audio/wav"

	// maxErrorBody bounds how much of a failed response ends up in an error.
	maxErrorBody = 256
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent with every synthesis. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each request. Default 30s; local synthesis of a long
// reply on CPU can be slow.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// Provider implements tts.Provider. It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	apiMode    APIMode
	httpClient *http.Client
}

// New returns a Provider for the server at serverURL, e.g.
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the XTTS synthesis body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider. In standard mode an empty VoiceID
// leaves the speaker to the model.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	var (
		httpReq *http.Request
		err     error
	)
	switch p.apiMode {
	case APIModeXTTS:
		httpReq, err = p.xttsRequest(ctx, req)
	default:
		httpReq, err = p.standardRequest(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	httpReq.Header.Set("Accept", mimeWAV)

	wav, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !isWAV(wav) {
		return nil, fmt.Errorf("coqui: %s returned %d bytes that are not WAV", httpReq.URL.Path, len(wav))
	}
	return &tts.Audio{Data: wav, MIMEType: mimeWAV}, nil
}

func (p *Provider) standardRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	q := url.Values{"text": {req.Text}}
	if req.VoiceID != "" {
		q.Set("speaker_id", req.VoiceID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/api/tts?"+q.Encode(), nil)
}

func (p *Provider) xttsRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	body, err := json.Marshal(ttsRequest{Text: req.Text, SpeakerWav: req.VoiceID, Language: p.language})
	if err != nil {
		return nil, err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/tts_to_audio/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	return r, nil
}

// ListVoices implements tts.Provider. Voices are sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, "/studio_speakers", &speakers); err != nil {
			return nil, err
		}
		return profiles(slices.Sorted(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, "/details", &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) == 0 {
		// Single-speaker model: the model itself is the only voice.
		name := cmp.Or(details.ModelName, "default")
		return profiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
	}
	speakers := slices.Sorted(slices.Values(details.Speakers))
	return profiles(speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("coqui: %s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}

func profiles(ids []string, meta map[string]string) []types.VoiceProfile {
	out := make([]types.VoiceProfile, len(ids))
	for i, id := range ids {
		out[i] = types.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: maps.Clone(meta)}
	}
	return out
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

var _ tts.Provider = (*Provider)(nil)
