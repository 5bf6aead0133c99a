// Package elevenlabs provides an ElevenLabs-backed TTS provider. Synthesis
// uses the REST endpoint POST /v1/text-to-speech/{voice_id} by default; the
// streaming WebSocket endpoint is available with WithTransport(TransportWebSocket).
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/palchat/pkg/provider/tts"
	"github.com/MrWong99/palchat/pkg/types"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	// DefaultModel is the synthesis model used when none is configured.
	DefaultModel = "eleven_monolingual_v1"
	// DefaultStability and DefaultSimilarityBoost are the fixed voice settings
	// sent with every request.
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75

	mimeMPEG     = "audio/mpeg"
	maxErrorBody = 512
)

// Transport selects how synthesis requests reach ElevenLabs.
type Transport string

const (
	// TransportHTTP posts the whole text and reads the audio response body.
	TransportHTTP Transport = "http"
	// TransportWebSocket streams the text over stream-input and concatenates
	// the returned audio chunks.
	TransportWebSocket Transport = "websocket"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the output_format query parameter (e.g.
// "mp3_44100_128"). Empty leaves the service default.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoiceSettings overrides stability and similarity boost.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// WithBaseURL overrides the API base URL. The WebSocket URL is derived from it
// by swapping the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTransport selects the synthesis transport. Defaults to TransportHTTP.
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		p.transport = t
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements tts.Provider backed by ElevenLabs.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	settings     voiceSettings
	baseURL      string
	transport    Transport
	httpClient   *http.Client
}

// New creates an ElevenLabs Provider. An empty apiKey is accepted; the
// service's 401 response is then returned from Synthesize.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:     apiKey,
		model:      DefaultModel,
		settings:   voiceSettings{Stability: DefaultStability, SimilarityBoost: DefaultSimilarityBoost},
		baseURL:    defaultBaseURL,
		transport:  TransportHTTP,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return nil, fmt.Errorf("elevenlabs: unknown transport %q", p.transport)
	}
	if p.model == "" {
		return nil, fmt.Errorf("elevenlabs: model must not be empty")
	}
	return p, nil
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// synthesisRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if p.transport == TransportWebSocket {
		return p.synthesizeWS(ctx, req)
	}
	return p.synthesizeHTTP(ctx, req)
}

func (p *Provider) synthesisURL(voiceID string) string {
	u := p.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	if p.outputFormat != "" {
		u += "?output_format=" + url.QueryEscape(p.outputFormat)
	}
	return u
}

func (p *Provider) synthesizeHTTP(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:          req.Text,
		ModelID:       p.model,
		VoiceSettings: p.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.synthesisURL(req.VoiceID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("Accept", mimeMPEG)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" || !strings.HasPrefix(mt, "audio/") {
		mt = mimeForFormat(p.outputFormat)
	}
	return &tts.Audio{Data: data, MIMEType: mt}, nil
}

// StatusError reports a non-success HTTP status from ElevenLabs.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("elevenlabs: synthesis failed: HTTP %d", e.Code)
	}
	return fmt.Sprintf("elevenlabs: synthesis failed: HTTP %d: %s", e.Code, e.Body)
}

// ---- ListVoices ----

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available to the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

// parseVoicesResponse parses a /v1/voices body into voice profiles.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
