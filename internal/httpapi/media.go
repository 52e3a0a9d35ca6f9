package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type imageRequest struct {
	ThreadID string `json:"thread_id"`
	Prompt   string `json:"prompt"`
	Size     string `json:"size"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	f, fh, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "audio exceeds size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart field file is required")
		return
	}
	defer f.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	text, err := s.chat.Transcribe(r.Context(), f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	def, voices := s.chat.Voices()
	respondJSON(w, http.StatusOK, map[string]any{
		"default": def,
		"voices":  voices,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	audio, err := s.chat.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.chat.GenerateImage(r.Context(), req.ThreadID, req.Prompt, req.Size)
	if err != nil {
		if errors.Is(err, apperr.ErrUpstream) {
			s.metrics.ObserveIndicator("image_failed")
		}
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
