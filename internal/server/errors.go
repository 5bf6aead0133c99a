package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/internal/session"
)

// errBadUpload marks a malformed turn upload.
var errBadUpload = errors.New("server: bad upload")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps err to a status and a client-safe message. Pipeline
// failures never expose technical detail; they are logged instead.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: http.StatusText(status)}

	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, character.ErrCharacterNotFound):
		status = http.StatusNotFound
		resp.Error = err.Error()
	case errors.Is(err, session.ErrBusy):
		status = http.StatusConflict
		resp = errorResponse{Error: err.Error(), Kind: engine.Kind(err)}
	case errors.Is(err, session.ErrNotRecording), errors.Is(err, errBadUpload):
		status = http.StatusBadRequest
		resp = errorResponse{Error: err.Error(), Kind: engine.Kind(err)}
	case engine.IsTranscription(err), engine.IsGeneration(err), engine.IsSynthesis(err):
		status = http.StatusBadGateway
		resp = errorResponse{Error: engine.FailureMessage, Kind: engine.Kind(err)}
	}

	if status >= 500 {
		observe.Logger(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
