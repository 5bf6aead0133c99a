// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider turns one complete reply into one encoded audio payload
// (typically MP3) that a client can play without further processing.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/palchat/pkg/types"
)

// Request describes one synthesis.
type Request struct {
	// Text is the reply to speak.
	Text string

	// VoiceID selects the provider voice. Providers forward an empty value
	// unchanged; whether the service accepts it is up to the service.
	VoiceID string
}

// Audio is an encoded synthesis result.
type Audio struct {
	// Data is the complete encoded payload.
	Data []byte

	// MIMEType describes Data, e.g. "audio/mpeg".
	MIMEType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text to speech. Any non-success response from
	// the service is returned as an error. No retries are attempted.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
