package llm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/cheapchat/internal/reliability"
)

func TestNewChatClientModes(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "mock"},
		{Config{OpenAIKey: "sk-test"}, "openai"},
		{Config{AnthropicKey: "ak-test"}, "anthropic"},
		{Config{OpenAIKey: "sk-test", AnthropicKey: "ak-test"}, "openai"},
		{Config{Provider: "anthropic", OpenAIKey: "sk", AnthropicKey: "ak"}, "anthropic"},
		{Config{Provider: "mock", OpenAIKey: "sk-test"}, "mock"},
	}
	for _, tc := range cases {
		c, err := NewChatClient(tc.cfg)
		if err != nil {
			t.Fatalf("NewChatClient(%+v) error = %v", tc.cfg, err)
		}
		if c.Name() != tc.want {
			t.Fatalf("NewChatClient(%+v).Name() = %q, want %q", tc.cfg, c.Name(), tc.want)
		}
	}

	if _, err := NewChatClient(Config{Provider: "openai"}); err == nil {
		t.Fatalf("openai without key should fail")
	}
	if _, err := NewChatClient(Config{Provider: "bard"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestNewMediaClient(t *testing.T) {
	if got := NewMediaClient(Config{}).Name(); got != "mock" {
		t.Fatalf("NewMediaClient().Name() = %q, want mock", got)
	}
	if got := NewMediaClient(Config{OpenAIKey: "sk"}).Name(); got != "openai" {
		t.Fatalf("NewMediaClient(key).Name() = %q, want openai", got)
	}
	if got := NewMediaClient(Config{Provider: "mock", OpenAIKey: "sk"}).Name(); got != "mock" {
		t.Fatalf("NewMediaClient(mock).Name() = %q, want mock", got)
	}
}

func TestMockChatEchoesLastUserMessage(t *testing.T) {
	c := NewMockClient()
	resp, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "second"},
	}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.HasPrefix(resp.Text, "Echo: second") {
		t.Fatalf("Text = %q, want echo of last user message", resp.Text)
	}
	if !strings.Contains(resp.Text, "4 blocks, 1 system") {
		t.Fatalf("Text = %q, want block counts", resp.Text)
	}
}

func TestMockChatHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockClient().Chat(ctx, ChatRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Chat() error = %v, want context.Canceled", err)
	}
}

func TestMockMedia(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	text, err := c.Transcribe(ctx, bytes.NewReader([]byte("abcd")), "a.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if !strings.Contains(text, "4 bytes") {
		t.Fatalf("Transcribe() = %q", text)
	}

	img, err := c.GenerateImage(ctx, "cat", "1024x1024")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatalf("GenerateImage() did not return a PNG")
	}
}

func TestSplitAnthropicFoldsSystemAndMergesTurns(t *testing.T) {
	system, turns := splitAnthropic([]Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "a"},
		{Role: RoleSystem, Content: "search block"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
		{Role: RoleUser, Content: "  "},
		{Role: RoleUser, Content: "d"},
	})
	if len(system) != 2 || system[1].Text != "search block" {
		t.Fatalf("system = %+v, want two blocks in order", system)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if len(turns[0].Content) != 2 {
		t.Fatalf("first turn blocks = %d, want 2 merged user blocks", len(turns[0].Content))
	}
}

func TestProviderErrorClassification(t *testing.T) {
	err := error(&ProviderError{Provider: "openai", Op: "chat", Status: 429, Err: errors.New("slow down")})
	if got := reliability.ErrorCode(err); got != "rate_limited" {
		t.Fatalf("ErrorCode() = %q, want rate_limited", got)
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("Error() = %q", err.Error())
	}

	wrapped := &ProviderError{Provider: "openai", Op: "chat", Err: context.DeadlineExceeded}
	if got := reliability.ErrorCode(wrapped); got != "timeout" {
		t.Fatalf("ErrorCode() = %q, want timeout", got)
	}
}

func TestTokenCounterFunc(t *testing.T) {
	tc := NewTokenCounterFunc(func(s string) int { return len(strings.Fields(s)) })
	got := tc.Count([]Message{{Content: "one two"}, {Content: "three"}})
	if got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	var nilCounter *TokenCounter
	if nilCounter.CountText("x") != 0 {
		t.Fatalf("nil counter should count zero")
	}
}
