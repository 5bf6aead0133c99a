// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: types.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{Audio: r})
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/palchat/pkg/provider/stt"
	"github.com/MrWong99/palchat/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Filename, ContentType and Language are copied from the request.
	Filename    string
	ContentType string
	Language    string
	// Audio holds the bytes read from the request's Audio reader.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider. Transcribe drains the
// request's Audio reader so tests can assert on the uploaded bytes.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result types.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	var data []byte
	if req.Audio != nil {
		data, _ = io.ReadAll(req.Audio)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{
		Ctx:         ctx,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Language:    req.Language,
		Audio:       data,
	})
	if p.Err != nil {
		return types.Transcript{}, p.Err
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ stt.Provider = (*Provider)(nil)
