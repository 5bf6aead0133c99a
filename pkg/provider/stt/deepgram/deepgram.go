// Package deepgram provides an STT provider backed by the Deepgram
// pre-recorded transcription API (POST /v1/listen with the raw recording as
// the request body).
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/palchat/pkg/provider/stt"
	"github.com/MrWong99/palchat/pkg/types"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	maxErrorBody    = 512
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code (e.g., "en", "de").
// When empty, Deepgram's language detection is requested.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the listen endpoint, mainly for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements stt.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a Deepgram Provider. An empty apiKey is accepted; Deepgram's
// 401 response is then returned from Transcribe.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// buildURL returns the listen URL with query parameters for one request.
func (p *Provider) buildURL(language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("deepgram: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	if language == "" {
		language = p.language
	}
	if language != "" {
		q.Set("language", language)
	} else {
		q.Set("detect_language", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse mirrors the parts of Deepgram's response used here.
type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	if req.Audio == nil {
		return types.Transcript{}, errors.New("deepgram: request has no audio")
	}

	endpoint, err := p.buildURL(req.Language)
	if err != nil {
		return types.Transcript{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, req.Audio)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	httpReq.Header.Set("Content-Type", ct)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return types.Transcript{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	return parseListenResponse(data)
}

// parseListenResponse extracts the first alternative of the first channel.
// A response without channels or alternatives yields an empty transcript.
func parseListenResponse(data []byte) (types.Transcript, error) {
	var r listenResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: parse response: %w", err)
	}
	tr := types.Transcript{
		Duration: time.Duration(r.Metadata.Duration * float64(time.Second)),
	}
	if len(r.Results.Channels) == 0 {
		return tr, nil
	}
	ch := r.Results.Channels[0]
	tr.Language = ch.DetectedLanguage
	if len(ch.Alternatives) > 0 {
		tr.Text = ch.Alternatives[0].Transcript
	}
	return tr, nil
}
