package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// onePixelPNG is a valid 1x1 transparent PNG.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// MockClient provides deterministic local replies when no provider key is
// configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req.Messages)
	return ChatResponse{Text: text, TotalTokens: len(strings.Fields(text))}, nil
}

func buildMockReply(msgs []Message) string {
	var last string
	system := 0
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			last = strings.TrimSpace(m.Content)
		case RoleSystem:
			system++
		}
	}
	if last == "" {
		last = "..."
	}
	return fmt.Sprintf("Echo: %s\n(context: %d blocks, %d system)", last, len(msgs), system)
}

func (c *MockClient) Transcribe(ctx context.Context, audio io.Reader, filename, mime string) (string, error) {
	n, err := io.Copy(io.Discard, audio)
	if err != nil {
		return "", &ProviderError{Provider: "mock", Op: "transcribe", Err: err}
	}
	return fmt.Sprintf("[mock transcript of %d bytes]", n), nil
}

func (c *MockClient) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	return []byte("ID3" + voice + ":" + text), nil
}

func (c *MockClient) GenerateImage(ctx context.Context, prompt, size string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(onePixelPNG)
}
