package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/chat"
	"github.com/ent0n29/cheapchat/internal/config"
	"github.com/ent0n29/cheapchat/internal/documents"
	"github.com/ent0n29/cheapchat/internal/memory"
	"github.com/ent0n29/cheapchat/internal/observability"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Chat      *chat.Service
	Memory    *memory.Manager
	Documents *documents.Service
	Metrics   *observability.Metrics
	// StoreMode is the resolved persistence backend name.
	StoreMode string
}

type Server struct {
	cfg       config.Config
	chat      *chat.Service
	memory    *memory.Manager
	docs      *documents.Service
	metrics   *observability.Metrics
	storeMode string
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		chat:      deps.Chat,
		memory:    deps.Memory,
		docs:      deps.Documents,
		metrics:   deps.Metrics,
		storeMode: deps.StoreMode,
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/-/health", s.handleServiceHealth)
	r.Get("/-/perf", s.handlePerfLatency)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/onboarding/status", s.handleOnboardingStatus)

		r.Post("/new_thread", s.handleNewThread)
		r.Post("/rename_thread", s.handleRenameThread)
		r.Post("/thread/use_memory", s.handleThreadUseMemory)
		r.Get("/threads", s.handleListThreads)
		r.Get("/thread/{id}", s.handleThreadMessages)
		r.Delete("/thread/{id}", s.handleDeleteThread)

		r.Get("/anchors/{thread_id}", s.handleListAnchors)
		r.Post("/anchors", s.handleSetAnchor)
		r.Delete("/anchors", s.handleDeleteAnchor)

		r.Get("/memory/list", s.handleMemoryList)
		r.Get("/memory/profile", s.handleMemoryProfile)
		r.Post("/memory/add", s.handleMemoryAdd)
		r.Post("/memory/update", s.handleMemoryUpdate)
		r.Post("/memory/forget", s.handleMemoryForget)
		r.Post("/memory/restore", s.handleMemoryRestore)

		r.Get("/models", s.handleModels)
		r.Post("/send", s.handleSend)
		r.Get("/ws", s.handleWS)

		r.Post("/files/upload", s.handleFilesUpload)
		r.Get("/files/list", s.handleFilesList)
		r.Delete("/files/{id}", s.handleFilesDelete)
		r.Get("/files/{id}/text", s.handleFilesText)
		r.Get("/files/{id}/ocr", s.handleFilesOCR)
		r.Get("/temp/{id}", s.handleTempFile)

		r.Post("/transcribe", s.handleTranscribe)
		r.Get("/voices", s.handleVoices)
		r.Post("/tts", s.handleTTS)
		r.Post("/image", s.handleImage)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, _ *http.Request) {
	provider := ""
	if s.chat != nil {
		provider = s.chat.ChatProvider()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"provider": provider,
		"models": map[string]string{
			"text":  s.cfg.ModelText,
			"stt":   s.cfg.ModelSTT,
			"tts":   s.cfg.ModelTTS,
			"image": s.cfg.ModelImage,
		},
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	def, models := s.chat.Models()
	respondJSON(w, http.StatusOK, map[string]any{
		"default": def,
		"models":  models,
	})
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondOK(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("httpapi: %s %s failed: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	}
	respondError(w, status, apperr.Code(err), msg)
}

// decodeBody decodes a required JSON body and answers 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
