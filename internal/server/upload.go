package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/palchat/pkg/audio"
)

// uploadField is the multipart form field carrying the recording.
const uploadField = "audio"

// receiveClip stores the uploaded recording in a temporary file and returns
// a clip for it. Raw PCM uploads are converted to 16 kHz mono WAV first.
// cleanup removes the file and is safe to call once the turn has finished.
func (s *Server) receiveClip(w http.ResponseWriter, r *http.Request) (audio.Clip, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return audio.Clip{}, nil, fmt.Errorf("%w: larger than %d bytes", errBadUpload, tooBig.Limit)
		}
		return audio.Clip{}, nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile(uploadField)
	if err != nil {
		return audio.Clip{}, nil, fmt.Errorf("%w: missing %q file", errBadUpload, uploadField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return audio.Clip{}, nil, fmt.Errorf("%w: read: %v", errBadUpload, err)
	}
	if len(data) == 0 {
		return audio.Clip{}, nil, fmt.Errorf("%w: empty recording", errBadUpload)
	}

	contentType := hdr.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if ext == "" {
		ext = ".m4a"
	}

	f, err := audio.ParsePCMType(contentType)
	switch {
	case err == nil:
		data = audio.EncodeWAV(audio.NormalizePCM(data, f), audio.TranscriptionRate, 1)
		contentType, ext = "audio/wav", ".wav"
	case errors.Is(err, audio.ErrNotPCM):
	default:
		return audio.Clip{}, nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	if contentType == "application/octet-stream" {
		contentType = ""
	}

	tmp, err := os.CreateTemp(s.uploadDir, "recording-*"+ext)
	if err != nil {
		return audio.Clip{}, nil, fmt.Errorf("server: create upload file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		cleanup()
		return audio.Clip{}, nil, fmt.Errorf("server: write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return audio.Clip{}, nil, fmt.Errorf("server: write upload file: %w", err)
	}
	return audio.Clip{URI: tmp.Name(), MIMEType: contentType}, cleanup, nil
}
