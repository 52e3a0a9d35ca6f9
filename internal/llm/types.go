package llm

import (
	"context"
	"fmt"
	"io"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged content block of model input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string
	Messages []Message
}

type ChatResponse struct {
	Text        string
	TotalTokens int
}

// ChatClient produces a reply for an ordered list of blocks.
type ChatClient interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// MediaClient covers speech and image generation.
type MediaClient interface {
	Name() string
	Transcribe(ctx context.Context, audio io.Reader, filename, mime string) (string, error)
	Speak(ctx context.Context, text, voice string) ([]byte, error)
	GenerateImage(ctx context.Context, prompt, size string) ([]byte, error)
}

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) HTTPStatus() int { return e.Status }
