package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/palchat/internal/observe"
)

type characterResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	VoiceID  string `json:"voice_id"`
	Greeting string `json:"greeting"`
	Default  bool   `json:"default"`
}

func (s *Server) listCharacters(w http.ResponseWriter, _ *http.Request) {
	def := s.chars.Default().ID
	list := s.chars.List()
	out := make([]characterResponse, 0, len(list))
	for _, c := range list {
		out = append(out, characterResponse{
			ID:       c.ID,
			Name:     c.Name,
			VoiceID:  c.VoiceID,
			Greeting: c.Greeting,
			Default:  c.ID == def,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "voice listing is not available"})
		return
	}
	voices, err := s.voices.ListVoices(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("list voices", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "voice listing failed"})
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

type createSessionRequest struct {
	CharacterID string `json:"character_id"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.CharacterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.StartRecording(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) cancelRecording(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.CancelRecording(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) runTurn(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	clip, cleanup, err := s.receiveClip(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cleanup()

	res, err := sess.RunTurn(r.Context(), clip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
