// Package audio handles recorded audio clips: locating and opening them,
// and normalising raw PCM uploads into WAV files a transcription service
// accepts.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrEmptyClip is returned when a Clip has no URI.
var ErrEmptyClip = errors.New("audio: clip has no uri")

// defaultFilename is used when the URI carries no usable file name.
const defaultFilename = "audio.m4a"

// audioTypes covers the recording formats mobile clients produce; the
// system mime table often lacks them.
var audioTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".mpga": "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
}

// Clip is a reference to a completed recording. URI is a local path, a
// file:// URI or an http(s):// URL.
type Clip struct {
	URI string

	// MIMEType optionally overrides the type derived from the file extension.
	MIMEType string
}

// Filename returns the base name of the clip, falling back to "audio.m4a".
func (c Clip) Filename() string {
	p := c.URI
	if u, err := url.Parse(c.URI); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	name := path.Base(filepath.ToSlash(p))
	if name == "" || name == "." || name == "/" {
		return defaultFilename
	}
	return name
}

// ContentType returns MIMEType or the type registered for the file extension.
func (c Clip) ContentType() string {
	if c.MIMEType != "" {
		return c.MIMEType
	}
	ext := strings.ToLower(path.Ext(c.Filename()))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Opener resolves clips to readable streams.
type Opener struct {
	// HTTPClient fetches http(s) clips. nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Open returns the clip's bytes. The caller must close the returned reader.
func (o *Opener) Open(ctx context.Context, c Clip) (io.ReadCloser, error) {
	if c.URI == "" {
		return nil, ErrEmptyClip
	}

	u, err := url.Parse(c.URI)
	// Single-letter schemes are Windows drive letters, not URI schemes.
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return openFile(c.URI)
	}

	switch u.Scheme {
	case "file":
		return openFile(u.Path)
	case "http", "https":
		return o.fetch(ctx, c.URI)
	default:
		return nil, fmt.Errorf("audio: unsupported clip scheme %q", u.Scheme)
	}
}

func openFile(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("audio: open clip: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("audio: stat clip: %w", err)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("audio: clip %s is empty", p)
	}
	return f, nil
}

func (o *Opener) fetch(ctx context.Context, uri string) (io.ReadCloser, error) {
	hc := o.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio: fetch clip: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("audio: fetch clip: HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}
