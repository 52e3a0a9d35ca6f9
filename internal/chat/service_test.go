package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/llm"
	"github.com/ent0n29/cheapchat/internal/memory"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/tempfiles"
	"github.com/ent0n29/cheapchat/internal/websearch"
)

type recordingChat struct {
	calls []llm.ChatRequest
	reply string
	err   error
}

func (r *recordingChat) Name() string { return "recording" }

func (r *recordingChat) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	r.calls = append(r.calls, req)
	if r.err != nil {
		return llm.ChatResponse{}, r.err
	}
	reply := r.reply
	if reply == "" {
		reply = "ok"
	}
	return llm.ChatResponse{Text: reply, TotalTokens: 7}, nil
}

func (r *recordingChat) last(t *testing.T) llm.ChatRequest {
	t.Helper()
	if len(r.calls) == 0 {
		t.Fatalf("chat model was not called")
	}
	return r.calls[len(r.calls)-1]
}

type fakeDocs struct {
	blocks map[string]string
	saved  int
}

func (f *fakeDocs) BlockText(_ context.Context, id string) (string, error) {
	b, ok := f.blocks[id]
	if !ok {
		return "", apperr.NotFound("file %s", id)
	}
	return b, nil
}

func (f *fakeDocs) SaveArtifact(data []byte, suffix, mime string) (tempfiles.Entry, error) {
	f.saved++
	return tempfiles.Entry{ID: fmt.Sprintf("art%d", f.saved), Mime: mime}, nil
}

type fixedPreview string

func (p fixedPreview) Preview(context.Context, string) string { return string(p) }

type fixture struct {
	svc    *Service
	store  *store.InMemoryStore
	memory *memory.Manager
	chat   *recordingChat
	search *websearch.Mock
	docs   *fakeDocs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	f := &fixture{
		store:  st,
		memory: memory.NewManager(st, 0),
		chat:   &recordingChat{},
		search: websearch.NewMock(),
		docs:   &fakeDocs{blocks: map[string]string{}},
	}
	f.svc = NewService(Config{
		DefaultModel: "gpt-5-mini",
		Models:       []string{"gpt-5-mini", "gpt-5"},
	}, Deps{
		Store:   st,
		Memory:  f.memory,
		Chat:    f.chat,
		Media:   llm.NewMockClient(),
		Search:  f.search,
		Preview: fixedPreview("page text"),
		Docs:    f.docs,
		Tokens:  llm.NewTokenCounterFunc(func(s string) int { return len(strings.Fields(s)) }),
	})
	return f
}

func boolPtr(b bool) *bool { return &b }

func TestSendEmptyTextIsValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), SendRequest{Text: "   "})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	threads, _ := f.store.ListThreads(context.Background())
	if len(threads) != 0 {
		t.Fatalf("threads = %d, want none created", len(threads))
	}
}

func TestSendUnknownThreadIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), SendRequest{ThreadID: "nope", Text: "hi"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Send() error = %v, want ErrNotFound", err)
	}
}

func TestSendCreatesThreadAndAssignsTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("ą", 70)

	res, err := f.svc.Send(ctx, SendRequest{Text: long})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.ThreadID == "" || res.Reply != "ok" || res.Tokens != 7 {
		t.Fatalf("result = %+v", res)
	}
	th, err := f.store.GetThread(ctx, res.ThreadID)
	if err != nil {
		t.Fatalf("GetThread() error = %v", err)
	}
	if th.Title != strings.Repeat("ą", 60) {
		t.Fatalf("Title = %q, want first 60 runes", th.Title)
	}
	if !th.UseMemory {
		t.Fatalf("UseMemory = false, want default true")
	}

	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "second"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	th, _ = f.store.GetThread(ctx, res.ThreadID)
	if th.Title != strings.Repeat("ą", 60) {
		t.Fatalf("Title changed to %q on second turn", th.Title)
	}

	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Fatalf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestSendHistoryWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, err := f.svc.NewThread(ctx, nil)
	if err != nil {
		t.Fatalf("NewThread() error = %v", err)
	}
	for i := 0; i < 61; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		if _, err := f.store.AddMessage(ctx, store.Message{
			ThreadID: th.ID, Role: role, Content: fmt.Sprintf("m%d", i), Kind: store.KindText,
		}); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: th.ID, Text: "now"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	req := f.chat.last(t)
	// system + 60 history + user
	if len(req.Messages) != 62 {
		t.Fatalf("blocks = %d, want 62", len(req.Messages))
	}
	if req.Messages[1].Content != "m1" {
		t.Fatalf("oldest history block = %q, want m1", req.Messages[1].Content)
	}
	if req.Messages[60].Content != "m60" {
		t.Fatalf("newest history block = %q, want m60", req.Messages[60].Content)
	}
	if got := req.Messages[61]; got.Role != llm.RoleUser || got.Content != "now" {
		t.Fatalf("last block = %+v, want current user message", got)
	}
}

func TestSendMemoryFlagResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.memory.Add(ctx, "", "mieszkam w Gdańsku", memory.ScopeFacts); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	res, err := f.svc.Send(ctx, SendRequest{Text: "hej", UseMemory: boolPtr(false)})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if strings.Contains(f.chat.last(t).Messages[0].Content, "Gdańsku") {
		t.Fatalf("profile included for a thread created with memory off")
	}

	// The persisted flag wins over the request flag for existing threads.
	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "again", UseMemory: boolPtr(true)}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if strings.Contains(f.chat.last(t).Messages[0].Content, "Gdańsku") {
		t.Fatalf("request flag overrode persisted use_memory=false")
	}

	if err := f.svc.SetUseMemory(ctx, res.ThreadID, true); err != nil {
		t.Fatalf("SetUseMemory() error = %v", err)
	}
	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "third"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(f.chat.last(t).Messages[0].Content, "Fakty: mieszkam w Gdańsku") {
		t.Fatalf("system block = %q, want profile", f.chat.last(t).Messages[0].Content)
	}
}

func TestSendRememberCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, SendRequest{Text: "Zapamiętaj: lubię krótkie odpowiedzi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Reply != replyRemembered {
		t.Fatalf("Reply = %q, want %q", res.Reply, replyRemembered)
	}
	if len(f.chat.calls) != 0 {
		t.Fatalf("model called %d times for a command", len(f.chat.calls))
	}

	active := true
	entries, _ := f.memory.List(ctx, &active)
	if len(entries) != 1 || entries[0].Value != "lubię krótkie odpowiedzi" || entries[0].Scope != memory.ScopeOther {
		t.Fatalf("memory = %+v", entries)
	}

	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1 acknowledgement", len(msgs))
	}
	if msgs[0].Role != store.RoleSystem || msgs[0].Kind != store.KindText ||
		msgs[0].Content != "Zapisano do pamięci: lubię krótkie odpowiedzi" {
		t.Fatalf("acknowledgement = %+v", msgs[0])
	}

	if _, err := f.svc.Send(ctx, SendRequest{Text: "remember:   "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Send(empty remember) error = %v, want ErrValidation", err)
	}
}

func TestSendForgetCommandBranches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.memory.Add(ctx, "", "kawa z mlekiem", "")
	b, _ := f.memory.Add(ctx, "", "kawa bez cukru", "")
	_, _ = f.memory.Add(ctx, "", "pies Burek", memory.ScopeFacts)

	res, err := f.svc.Send(ctx, SendRequest{Text: "zapomnij: kawa"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("Candidates = %+v, want 2", res.Candidates)
	}
	if !strings.HasPrefix(res.Reply, replyAmbiguous) {
		t.Fatalf("Reply = %q, want candidate list", res.Reply)
	}
	for _, id := range []int64{a.ID, b.ID} {
		if !strings.Contains(res.Reply, fmt.Sprintf("#%d", id)) {
			t.Fatalf("Reply = %q, missing #%d", res.Reply, id)
		}
	}
	active := true
	if entries, _ := f.memory.List(ctx, &active); len(entries) != 3 {
		t.Fatalf("active entries = %d, want 3", len(entries))
	}

	res, err = f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "forget: burek"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Reply != replyForgotten {
		t.Fatalf("Reply = %q, want %q", res.Reply, replyForgotten)
	}

	res, err = f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "forget: żyrafa"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Reply != replyNoMatch {
		t.Fatalf("Reply = %q, want %q", res.Reply, replyNoMatch)
	}

	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want one acknowledgement per command", len(msgs))
	}
	if msgs[1].Content != "Zapomniano: burek" {
		t.Fatalf("acknowledgement = %q", msgs[1].Content)
	}
	if len(f.chat.calls) != 0 {
		t.Fatalf("model called for forget commands")
	}
}

func TestSendWebSearchPersistsSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, SendRequest{Text: "pogoda", Web: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	req := f.chat.last(t)
	if !strings.Contains(req.Messages[0].Content, websearch.GroundingInstruction) {
		t.Fatalf("system block missing grounding instruction")
	}
	sources := req.Messages[len(req.Messages)-2]
	if sources.Role != llm.RoleSystem || !strings.Contains(sources.Content, "Źródła wyszukiwania") {
		t.Fatalf("sources block = %+v", sources)
	}
	if !strings.Contains(sources.Content, "[preview]\npage text") {
		t.Fatalf("sources block missing preview: %q", sources.Content)
	}

	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 3 || msgs[1].Kind != store.KindSearch || msgs[1].Role != store.RoleSystem {
		t.Fatalf("messages = %+v, want user, search, assistant", msgs)
	}

	// Persisted sources are replayed on the next turn.
	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "dalej"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := f.chat.last(t).Messages[2]; got.Role != llm.RoleSystem || got.Content != msgs[1].Content {
		t.Fatalf("replayed block = %+v", got)
	}
}

func TestSendWebSearchNoResults(t *testing.T) {
	f := newFixture(t)
	f.search.Results = []websearch.Result{}
	ctx := context.Background()

	res, err := f.svc.Send(ctx, SendRequest{Text: "nic", Web: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want no search message", len(msgs))
	}
	if strings.Contains(f.chat.last(t).Messages[0].Content, websearch.GroundingInstruction) {
		t.Fatalf("grounding instruction added without sources")
	}
}

func TestSendDocuments(t *testing.T) {
	f := newFixture(t)
	f.docs.blocks["d1"] = "Dokument: a.txt\n\nalpha"
	f.docs.blocks["d2"] = "Dokument: b.txt\n\nbeta"
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, SendRequest{Text: "summarize", Files: []string{"d2", "d1"}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	req := f.chat.last(t)
	if req.Messages[1].Content != f.docs.blocks["d2"] || req.Messages[2].Content != f.docs.blocks["d1"] {
		t.Fatalf("document blocks out of order: %+v", req.Messages)
	}

	th, _ := f.svc.NewThread(ctx, nil)
	_, err := f.svc.Send(ctx, SendRequest{ThreadID: th.ID, Text: "x", Files: []string{"gone"}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Send(missing file) error = %v, want ErrNotFound", err)
	}
	if msgs, _ := f.store.ListMessages(ctx, th.ID); len(msgs) != 0 {
		t.Fatalf("messages = %d, want none recorded on failure", len(msgs))
	}
}

func TestSendModelAllowList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, SendRequest{Text: "a", Model: "gpt-5"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := f.chat.last(t).Model; got != "gpt-5" {
		t.Fatalf("Model = %q, want gpt-5", got)
	}
	if _, err := f.svc.Send(ctx, SendRequest{Text: "b", Model: "o9-ultra"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := f.chat.last(t).Model; got != "gpt-5-mini" {
		t.Fatalf("Model = %q, want default", got)
	}
}

func TestSendUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.chat.err = &llm.ProviderError{Provider: "openai", Op: "chat", Status: 503, Err: errors.New("overloaded")}

	_, err := f.svc.Send(context.Background(), SendRequest{Text: "hi"})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("Send() error = %v, want ErrUpstream", err)
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || pe.Status != 503 {
		t.Fatalf("errors.As(ProviderError) failed for %v", err)
	}
}

func TestThreadHelpers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _ := f.svc.NewThread(ctx, boolPtr(false))

	threads, err := f.svc.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}
	if len(threads) != 1 || threads[0].Title != th.ID || threads[0].UseMemory {
		t.Fatalf("threads = %+v, want untitled thread shown by id", threads)
	}

	if err := f.svc.RenameThread(ctx, th.ID, "  "+strings.Repeat("x", 130)+"  "); err != nil {
		t.Fatalf("RenameThread() error = %v", err)
	}
	got, _ := f.store.GetThread(ctx, th.ID)
	if got.Title != strings.Repeat("x", 120) {
		t.Fatalf("Title = %q, want 120 runes", got.Title)
	}

	if err := f.svc.SetAnchor(ctx, th.ID, 2, " ważne "); err != nil {
		t.Fatalf("SetAnchor() error = %v", err)
	}
	if err := f.svc.SetAnchor(ctx, th.ID, -1, "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("SetAnchor(-1) error = %v, want ErrValidation", err)
	}
	if err := f.svc.SetAnchor(ctx, "missing", 0, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("SetAnchor(missing) error = %v, want ErrNotFound", err)
	}
	anchors, _ := f.svc.Anchors(ctx, th.ID)
	if len(anchors) != 1 || anchors[0].Label != "ważne" {
		t.Fatalf("anchors = %+v", anchors)
	}
	if err := f.svc.DeleteAnchor(ctx, th.ID, 2); err != nil {
		t.Fatalf("DeleteAnchor() error = %v", err)
	}

	if err := f.svc.DeleteThread(ctx, th.ID); err != nil {
		t.Fatalf("DeleteThread() error = %v", err)
	}
	if _, err := f.svc.Messages(ctx, th.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Messages(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestGenerateImageRecordsImageMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateImage(ctx, "", " kot w kapeluszu ", "")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if res.URL != "/api/temp/art1" || res.Prompt != "kot w kapeluszu" {
		t.Fatalf("result = %+v", res)
	}
	msgs, _ := f.store.ListMessages(ctx, res.ThreadID)
	if len(msgs) != 1 || msgs[0].Kind != store.KindImage || msgs[0].Role != store.RoleAssistant {
		t.Fatalf("messages = %+v", msgs)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(msgs[0].Content), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if payload["url"] != res.URL || payload["prompt"] != res.Prompt {
		t.Fatalf("payload = %+v", payload)
	}

	// Image messages never reach the model.
	if _, err := f.svc.Send(ctx, SendRequest{ThreadID: res.ThreadID, Text: "opisz"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n := len(f.chat.last(t).Messages); n != 2 {
		t.Fatalf("blocks = %d, want image excluded", n)
	}

	if _, err := f.svc.GenerateImage(ctx, "", "  ", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("GenerateImage(empty) error = %v, want ErrValidation", err)
	}
}

func TestSpeakVoiceAllowList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	audio, err := f.svc.Speak(ctx, "cześć", "Coral")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if string(audio) != "ID3coral:cześć" {
		t.Fatalf("audio = %q", audio)
	}
	audio, _ = f.svc.Speak(ctx, "x", "")
	if string(audio) != "ID3alloy:x" {
		t.Fatalf("audio = %q, want default voice", audio)
	}
	if _, err := f.svc.Speak(ctx, "x", "robot"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Speak(unknown voice) error = %v, want ErrValidation", err)
	}
}

func TestTranscribe(t *testing.T) {
	f := newFixture(t)
	text, err := f.svc.Transcribe(context.Background(), strings.NewReader("abcd"), "", "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "[mock transcript of 4 bytes]" {
		t.Fatalf("Transcribe() = %q", text)
	}
}
