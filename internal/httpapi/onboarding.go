package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	ChatProvider   string            `json:"chat_provider"`
	StoreMode      string            `json:"store_mode"`
	SearchProvider string            `json:"search_provider"`
	Checks         []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	provider := "mock"
	if s.chat != nil {
		provider = s.chat.ChatProvider()
	}

	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.providerChecks(provider)...)
	checks = append(checks, s.storeCheck())
	checks = append(checks, s.toolChecks()...)
	if strings.EqualFold(s.cfg.SearchProvider, "off") {
		checks = append(checks, onboardingCheck{
			ID:     "web_search",
			Status: "warn",
			Label:  "Web search",
			Detail: "disabled",
			Fix:    "Set SEARCH_PROVIDER=duckduckgo to allow web-augmented replies.",
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		ChatProvider:   provider,
		StoreMode:      s.storeMode,
		SearchProvider: s.cfg.SearchProvider,
		Checks:         checks,
	})
}

func (s *Server) providerChecks(provider string) []onboardingCheck {
	out := make([]onboardingCheck, 0, 2)
	switch provider {
	case "openai":
		out = append(out, onboardingCheck{
			ID:     "chat_provider",
			Status: "ok",
			Label:  "Chat model (OpenAI)",
			Detail: fmt.Sprintf("key from %s", keySourceLabel(s.cfg.OpenAIKeySource)),
		})
	case "anthropic":
		out = append(out, onboardingCheck{
			ID:     "chat_provider",
			Status: "ok",
			Label:  "Chat model (Anthropic)",
			Detail: "ANTHROPIC_API_KEY present",
		})
	default:
		out = append(out, onboardingCheck{
			ID:     "chat_provider",
			Status: "warn",
			Label:  "Chat model (mock)",
			Detail: "Replies are local echoes.",
			Fix:    "Set OPENAI_API_KEY or save the key in ./chat-api.env or ~/.openai/api_key.",
		})
	}

	if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" {
		out = append(out, onboardingCheck{
			ID:     "media_provider",
			Status: "warn",
			Label:  "Speech and images",
			Detail: "no OpenAI key; transcription, speech and images are mocked",
			Fix:    "Set OPENAI_API_KEY.",
		})
	}
	return out
}

func keySourceLabel(source string) string {
	if strings.TrimSpace(source) == "" {
		return "config"
	}
	return source
}

func (s *Server) storeCheck() onboardingCheck {
	switch s.storeMode {
	case "postgres":
		return onboardingCheck{ID: "store", Status: "ok", Label: "Persistence", Detail: "postgres"}
	case "sqlite":
		dir := filepath.Dir(s.cfg.SQLitePath)
		if err := dirWritable(dir); err != nil {
			return onboardingCheck{
				ID:     "store",
				Status: "error",
				Label:  "Persistence",
				Detail: fmt.Sprintf("sqlite directory not writable (%s)", dir),
				Fix:    "Set CHEAPCHAT_DATA_DIR or SQLITE_PATH to a writable location.",
			}
		}
		return onboardingCheck{ID: "store", Status: "ok", Label: "Persistence", Detail: "sqlite " + s.cfg.SQLitePath}
	default:
		return onboardingCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Persistence",
			Detail: "in-memory only",
			Fix:    "Set STORE_MODE=sqlite or DATABASE_URL to keep threads across restarts.",
		}
	}
}

func (s *Server) toolChecks() []onboardingCheck {
	tools := []struct {
		id, label, bin, fix string
	}{
		{"pdftotext", "PDF text extraction", s.cfg.PDFToTextPath, "Install poppler-utils."},
		{"pdftoppm", "PDF rasterizer (OCR)", s.cfg.PDFToPPMPath, "Install poppler-utils."},
		{"tesseract", "OCR engine", s.cfg.TesseractPath, "Install tesseract-ocr with the pol and eng language packs."},
	}
	out := make([]onboardingCheck, 0, len(tools))
	for _, tool := range tools {
		bin := strings.TrimSpace(tool.bin)
		if bin == "" {
			bin = tool.id
		}
		if _, err := exec.LookPath(bin); err != nil {
			out = append(out, onboardingCheck{
				ID:     tool.id,
				Status: "warn",
				Label:  tool.label,
				Detail: bin + " not found",
				Fix:    tool.fix,
			})
			continue
		}
		out = append(out, onboardingCheck{ID: tool.id, Status: "ok", Label: tool.label, Detail: bin + " found"})
	}
	return out
}

func dirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
