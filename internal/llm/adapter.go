package llm

import (
	"fmt"
	"strings"
)

// Config controls client construction.
type Config struct {
	Provider         string
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	STTModel         string
	TTSModel         string
	ImageModel       string
}

// NewChatClient picks the chat backend. In auto mode an OpenAI key wins, then
// an Anthropic key, otherwise the deterministic mock.
func NewChatClient(cfg Config) (ChatClient, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIKey) != "" {
			return NewOpenAIClient(cfg), nil
		}
		if strings.TrimSpace(cfg.AnthropicKey) != "" {
			return NewAnthropicClient(cfg), nil
		}
		return NewMockClient(), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIKey) == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicKey) == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewMediaClient returns the OpenAI media client when a key is present and
// the provider is not forced to mock.
func NewMediaClient(cfg Config) MediaClient {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode != "mock" && strings.TrimSpace(cfg.OpenAIKey) != "" {
		return NewOpenAIClient(cfg)
	}
	return NewMockClient()
}
