package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicClient talks to the Anthropic Messages API. System blocks are
// folded into the system parameter.
type AnthropicClient struct {
	client anthropic.Client
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(cfg.AnthropicKey))}
	if u := strings.TrimSpace(cfg.AnthropicBaseURL); u != "" {
		opts = append(opts, aoption.WithBaseURL(u))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, turns := splitAnthropic(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: anthropicMaxTokens,
		Messages:  turns,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		pe := &ProviderError{Provider: "anthropic", Op: "chat", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			pe.Status = apiErr.StatusCode
		}
		return ChatResponse{}, pe
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.TrimSpace(tb.Text))
		}
	}
	return ChatResponse{
		Text:        sb.String(),
		TotalTokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// splitAnthropic moves system blocks into the system parameter and merges
// consecutive turns of the same role.
func splitAnthropic(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system []anthropic.TextBlockParam
		turns  []anthropic.MessageParam
		role   string
		blocks []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == RoleAssistant {
			turns = append(turns, anthropic.NewAssistantMessage(blocks...))
		} else {
			turns = append(turns, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, m := range msgs {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		if m.Role == RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: text})
			continue
		}
		r := RoleUser
		if m.Role == RoleAssistant {
			r = RoleAssistant
		}
		if r != role {
			flush()
			role = r
		}
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	flush()
	return system, turns
}
