package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/cheapchat/internal/documents"
)

const multipartMemory = 8 << 20

func (s *Server) handleFilesUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart field files is required")
		return
	}

	out := make([]documents.Info, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		info, err := s.docs.Upload(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
		_ = f.Close()
		if err != nil {
			respondAppError(w, r, err)
			return
		}
		out = append(out, info)
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (s *Server) maxUploadBytes() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return 25 << 20
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	list, err := s.docs.List(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleFilesText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := s.docs.Text(r.Context(), id)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "text": text})
}

func (s *Server) handleFilesOCR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lang := strings.TrimSpace(r.URL.Query().Get("lang"))
	if lang == "" {
		lang = s.cfg.OCRLang
	}
	dpi := s.cfg.OCRDPI
	if raw := strings.TrimSpace(r.URL.Query().Get("dpi")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "dpi must be an integer")
			return
		}
		dpi = n
	}

	text, err := s.docs.OCR(r.Context(), id, lang, dpi)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "lang": lang, "text": text})
}

func (s *Server) handleTempFile(w http.ResponseWriter, r *http.Request) {
	entry, err := s.docs.Open(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "file is gone")
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if entry.Mime != "" {
		w.Header().Set("Content-Type", entry.Mime)
	}
	http.ServeContent(w, r, filepath.Base(entry.Path), st.ModTime(), f)
}
