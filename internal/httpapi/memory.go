package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/cheapchat/internal/memory"
)

type memoryAddRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Scope string `json:"scope"`
}

type memoryUpdateRequest struct {
	ID       int64   `json:"id"`
	Key      *string `json:"key"`
	Value    *string `json:"value"`
	Scope    *string `json:"scope"`
	IsActive *bool   `json:"is_active"`
}

type memoryIDRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	var active *bool
	switch strings.TrimSpace(r.URL.Query().Get("active")) {
	case "":
	case "1", "true":
		v := true
		active = &v
	case "0", "false":
		v := false
		active = &v
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "active must be 0 or 1")
		return
	}
	entries, err := s.memory.List(r.Context(), active)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMemoryProfile(w http.ResponseWriter, r *http.Request) {
	snippet, err := s.memory.ProfileSnippet(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"profile": snippet})
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryAddRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := s.memory.Add(r.Context(), req.Key, req.Value, req.Scope)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "id": entry.ID})
}

func (s *Server) handleMemoryUpdate(w http.ResponseWriter, r *http.Request) {
	var req memoryUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.memory.Update(r.Context(), req.ID, memory.Update{
		Key:      req.Key,
		Value:    req.Value,
		Scope:    req.Scope,
		IsActive: req.IsActive,
	}); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleMemoryForget(w http.ResponseWriter, r *http.Request) {
	var req memoryIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.memory.Forget(r.Context(), req.ID); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleMemoryRestore(w http.ResponseWriter, r *http.Request) {
	var req memoryIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.memory.Restore(r.Context(), req.ID); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}
