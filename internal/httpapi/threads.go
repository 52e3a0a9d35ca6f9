package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/cheapchat/internal/chat"
)

type newThreadRequest struct {
	UseMemory *bool `json:"use_memory"`
}

type renameThreadRequest struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

type threadUseMemoryRequest struct {
	ThreadID  string `json:"thread_id"`
	UseMemory *bool  `json:"use_memory"`
}

type anchorRequest struct {
	ThreadID  string `json:"thread_id"`
	TurnIndex *int   `json:"turn_index"`
	Label     string `json:"label"`
}

func (s *Server) handleNewThread(w http.ResponseWriter, r *http.Request) {
	var req newThreadRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	t, err := s.chat.NewThread(r.Context(), req.UseMemory)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"thread_id": t.ID})
}

func (s *Server) handleRenameThread(w http.ResponseWriter, r *http.Request) {
	var req renameThreadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "thread_id is required")
		return
	}
	if err := s.chat.RenameThread(r.Context(), req.ThreadID, req.Title); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleThreadUseMemory(w http.ResponseWriter, r *http.Request) {
	var req threadUseMemoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" || req.UseMemory == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "thread_id and use_memory are required")
		return
	}
	if err := s.chat.SetUseMemory(r.Context(), req.ThreadID, *req.UseMemory); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.chat.ListThreads(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, threads)
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteThread(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleListAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := s.chat.Anchors(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, anchors)
}

func (s *Server) handleSetAnchor(w http.ResponseWriter, r *http.Request) {
	var req anchorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" || req.TurnIndex == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "thread_id and turn_index are required")
		return
	}
	if err := s.chat.SetAnchor(r.Context(), req.ThreadID, *req.TurnIndex, req.Label); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleDeleteAnchor(w http.ResponseWriter, r *http.Request) {
	var req anchorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" || req.TurnIndex == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "thread_id and turn_index are required")
		return
	}
	if err := s.chat.DeleteAnchor(r.Context(), req.ThreadID, *req.TurnIndex); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req chat.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.chat.Send(r.Context(), req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
