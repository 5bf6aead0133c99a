// Package audiostore turns synthesized audio into a URL a client can play.
//
// [DataURI] embeds the audio in a self-contained data: URI and needs no
// storage. [S3] uploads it to an S3-compatible bucket and returns a
// presigned (or public) GET URL, which keeps large replies out of JSON
// responses.
package audiostore

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// ErrNoAudio is returned when there is nothing to publish.
var ErrNoAudio = errors.New("audiostore: no audio")

// defaultMIME is assumed when a provider does not report a type.
const defaultMIME = "audio/mpeg"

// Publisher makes synthesized audio reachable by URL.
type Publisher interface {
	Publish(ctx context.Context, a *tts.Audio) (string, error)
}

// DataURI publishes audio as "data:<mime>;base64,<payload>".
type DataURI struct{}

// Publish implements [Publisher].
func (DataURI) Publish(_ context.Context, a *tts.Audio) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", ErrNoAudio
	}
	return EncodeDataURI(mimeOf(a), a.Data), nil
}

// EncodeDataURI returns a base64 data URI for data.
func EncodeDataURI(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

func mimeOf(a *tts.Audio) string {
	if a.MIMEType == "" {
		return defaultMIME
	}
	return a.MIMEType
}

var _ Publisher = DataURI{}
