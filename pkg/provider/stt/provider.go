// Package stt defines the Provider interface for batch speech-to-text backends.
//
// A provider uploads one finished recording to a transcription service (the
// OpenAI transcription API or a self-hosted whisper.cpp server) and returns the
// recognised text exactly as the service produced it.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"io"

	"github.com/MrWong99/palchat/pkg/types"
)

// Request describes one recording to transcribe.
type Request struct {
	// Audio streams the encoded recording. The provider reads it to EOF and
	// does not close it.
	Audio io.Reader

	// Filename is the name sent with the multipart upload. Services use the
	// extension to detect the container format.
	Filename string

	// ContentType is the MIME type of Audio. Empty lets the provider guess.
	ContentType string

	// Language is an optional ISO-639-1 hint. Empty means auto-detect.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe uploads req.Audio and returns the service's transcript.
	// Transport failures, authentication failures and non-success statuses
	// are returned as errors. No retries are attempted.
	Transcribe(ctx context.Context, req Request) (types.Transcript, error)
}
