package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/llm"
	"github.com/ent0n29/cheapchat/internal/memory"
	"github.com/ent0n29/cheapchat/internal/observability"
	"github.com/ent0n29/cheapchat/internal/policy"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/tempfiles"
	"github.com/ent0n29/cheapchat/internal/websearch"
)

const (
	DefaultHistoryLimit  = 60
	DefaultTitleMaxChars = 60
	DefaultModel         = "gpt-5-mini"

	labelMaxChars = 120
)

const (
	replyRemembered = "✅ Zapamiętane."
	replyForgotten  = "🧹 Zapomniane."
	replyNoMatch    = "Nie znalazłem pasujących wpisów w pamięci."
	replyAmbiguous  = "Znaleziono wiele wpisów. Wybierz ID do zapomnienia w panelu pamięci:"
)

// Previewer fetches a short preview of a page; failures yield "".
type Previewer interface {
	Preview(ctx context.Context, url string) string
}

// Documents resolves uploaded documents and stores generated artifacts.
type Documents interface {
	BlockText(ctx context.Context, id string) (string, error)
	SaveArtifact(data []byte, suffix, mime string) (tempfiles.Entry, error)
}

type Config struct {
	DefaultModel  string
	Models        []string
	HistoryLimit  int
	TitleMaxChars int
	SearchResults int
	Voices        []string
	DefaultVoice  string
	ImageSize     string
}

// Deps are the collaborators of a Service. Preview, Tokens and Metrics are
// optional.
type Deps struct {
	Store   store.Store
	Memory  *memory.Manager
	Chat    llm.ChatClient
	Media   llm.MediaClient
	Search  websearch.Searcher
	Preview Previewer
	Docs    Documents
	Tokens  *llm.TokenCounter
	Metrics *observability.Metrics
}

// Service runs chat turns and owns thread-level operations.
type Service struct {
	cfg     Config
	store   store.Store
	memory  *memory.Manager
	chat    llm.ChatClient
	media   llm.MediaClient
	search  websearch.Searcher
	preview Previewer
	docs    Documents
	tokens  *llm.TokenCounter
	metrics *observability.Metrics
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TitleMaxChars <= 0 {
		cfg.TitleMaxChars = DefaultTitleMaxChars
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = websearch.DefaultResults
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{cfg.DefaultModel}
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = DefaultVoice
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = append([]string(nil), DefaultVoices...)
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = DefaultImageSize
	}
	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		memory:  deps.Memory,
		chat:    deps.Chat,
		media:   deps.Media,
		search:  deps.Search,
		preview: deps.Preview,
		docs:    deps.Docs,
		tokens:  deps.Tokens,
		metrics: deps.Metrics,
	}
}

// Models returns the default model and the allow-list.
func (s *Service) Models() (string, []string) {
	return s.cfg.DefaultModel, append([]string(nil), s.cfg.Models...)
}

// ChatProvider names the chat backend in use.
func (s *Service) ChatProvider() string {
	return s.chat.Name()
}

func (s *Service) resolveModel(requested string) string {
	requested = strings.TrimSpace(requested)
	for _, m := range s.cfg.Models {
		if m == requested {
			return m
		}
	}
	return s.cfg.DefaultModel
}

type SendRequest struct {
	ThreadID  string   `json:"thread_id"`
	Text      string   `json:"text"`
	Web       bool     `json:"web"`
	UseMemory *bool    `json:"use_memory,omitempty"`
	Model     string   `json:"model,omitempty"`
	Files     []string `json:"files,omitempty"`
}

type SendResult struct {
	ThreadID   string             `json:"thread_id"`
	Reply      string             `json:"reply"`
	Tokens     int                `json:"tokens"`
	Candidates []memory.Candidate `json:"candidates,omitempty"`
}

// Send runs one chat turn. Memory commands are answered without calling the
// model.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	started := time.Now()
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return SendResult{}, apperr.Validation("empty message")
	}

	thread, err := s.resolveThread(ctx, req.ThreadID, req.UseMemory)
	if err != nil {
		return SendResult{}, err
	}

	if cmd, ok := ParseCommand(text); ok {
		res, err := s.runCommand(ctx, thread.ID, cmd)
		if err != nil {
			s.metrics.ObserveTurn("error")
			return SendResult{}, err
		}
		s.metrics.ObserveTurn("command_" + string(cmd.Kind))
		return res, nil
	}

	res, err := s.reply(ctx, thread, text, req)
	if err != nil {
		s.metrics.ObserveTurn("error")
		log.Printf("chat: send thread=%s failed: %v", thread.ID, err)
		return SendResult{}, err
	}
	s.metrics.ObserveTurn("reply")
	s.metrics.ObserveStage(observability.StageTurnTotal, time.Since(started))
	return res, nil
}

// resolveThread creates a thread from the request flag when id is empty;
// an existing thread keeps its persisted flag.
func (s *Service) resolveThread(ctx context.Context, id string, useMemory *bool) (store.Thread, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		return s.store.GetThread(ctx, id)
	}
	return s.NewThread(ctx, useMemory)
}

func (s *Service) reply(ctx context.Context, thread store.Thread, text string, req SendRequest) (SendResult, error) {
	history, err := s.store.RecentMessages(ctx, thread.ID, s.cfg.HistoryLimit)
	if err != nil {
		return SendResult{}, err
	}

	docsStarted := time.Now()
	docBlocks, err := s.documentBlocks(ctx, req.Files)
	if err != nil {
		return SendResult{}, err
	}
	if len(req.Files) > 0 {
		s.metrics.ObserveStage(observability.StageDocuments, time.Since(docsStarted))
	}

	if _, err := s.store.AddMessage(ctx, store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleUser,
		Content:  text,
		Kind:     store.KindText,
	}); err != nil {
		return SendResult{}, err
	}

	var searchBlock string
	if req.Web {
		searchBlock, err = s.searchBlock(ctx, thread.ID, text)
		if err != nil {
			return SendResult{}, err
		}
	}

	var profile string
	if thread.UseMemory && s.memory != nil {
		profile, err = s.memory.ProfileSnippet(ctx)
		if err != nil {
			return SendResult{}, err
		}
	}

	ctxStarted := time.Now()
	msgs := BuildContext(ContextInput{
		History:     history,
		Profile:     profile,
		SearchBlock: searchBlock,
		Documents:   docBlocks,
		UserText:    text,
	})
	promptTokens := s.tokens.Count(msgs)
	s.metrics.ObserveContext(len(msgs), promptTokens)
	s.metrics.ObserveStage(observability.StageContext, time.Since(ctxStarted))

	model := s.resolveModel(req.Model)
	llmStarted := time.Now()
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{Model: model, Messages: msgs})
	if err != nil {
		s.metrics.ObserveProviderError(s.chat.Name(), err)
		return SendResult{}, apperr.Upstream(err, "chat completion")
	}
	tokens := resp.TotalTokens
	if tokens == 0 {
		tokens = promptTokens + s.tokens.CountText(resp.Text)
	}
	s.metrics.ObserveLLMCall(time.Since(llmStarted), tokens)

	if _, err := s.store.AddMessage(ctx, store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleAssistant,
		Content:  resp.Text,
		Kind:     store.KindText,
	}); err != nil {
		return SendResult{}, err
	}

	if thread.Title == "" {
		if err := s.store.SetThreadTitle(ctx, thread.ID, truncateRunes(text, s.cfg.TitleMaxChars)); err != nil {
			log.Printf("chat: set title thread=%s: %v", thread.ID, err)
		}
	}

	logged, _ := policy.RedactPII(text)
	log.Printf("chat: reply thread=%s model=%s blocks=%d tokens=%d text=%q",
		thread.ID, model, len(msgs), tokens, truncateRunes(logged, 80))
	return SendResult{ThreadID: thread.ID, Reply: resp.Text, Tokens: tokens}, nil
}

func (s *Service) documentBlocks(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if s.docs == nil {
		return nil, apperr.Validation("documents are not available")
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		block, err := s.docs.BlockText(ctx, id)
		if err != nil {
			return nil, err
		}
		if block != "" {
			out = append(out, block)
		}
	}
	return out, nil
}

// searchBlock runs the web search, extends the top result with a page
// preview and persists the formatted sources as a search message. No results
// yields "".
func (s *Service) searchBlock(ctx context.Context, threadID, query string) (string, error) {
	if s.search == nil {
		return "", apperr.Validation("web search disabled")
	}
	started := time.Now()
	results, err := s.search.Search(ctx, query, s.cfg.SearchResults)
	if err != nil {
		s.metrics.ObserveProviderError(s.search.Name(), err)
		if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrUpstream) {
			return "", err
		}
		return "", apperr.Upstream(err, "web search")
	}
	if len(results) == 0 {
		s.metrics.ObserveIndicator("search_empty")
		return "", nil
	}

	if s.preview != nil {
		results = websearch.AttachPreview(results, s.preview.Preview(ctx, results[0].URL))
	}
	block := websearch.FormatSources(results)
	if _, err := s.store.AddMessage(ctx, store.Message{
		ThreadID: threadID,
		Role:     store.RoleSystem,
		Content:  block,
		Kind:     store.KindSearch,
	}); err != nil {
		return "", err
	}
	s.metrics.ObserveStage(observability.StageSearch, time.Since(started))
	return block, nil
}

func (s *Service) runCommand(ctx context.Context, threadID string, cmd Command) (SendResult, error) {
	if s.memory == nil {
		return SendResult{}, apperr.Validation("memory is not available")
	}

	switch cmd.Kind {
	case CommandRemember:
		if cmd.Payload == "" {
			return SendResult{}, apperr.Validation("nothing to remember")
		}
		if _, err := s.memory.Add(ctx, "", cmd.Payload, memory.ScopeOther); err != nil {
			return SendResult{}, err
		}
		if err := s.addSystemNote(ctx, threadID, "Zapisano do pamięci: "+cmd.Payload); err != nil {
			return SendResult{}, err
		}
		return SendResult{ThreadID: threadID, Reply: replyRemembered}, nil

	case CommandForget:
		res, err := s.memory.ForgetByPhrase(ctx, cmd.Payload)
		if err != nil {
			return SendResult{}, err
		}
		switch res.Outcome {
		case memory.OutcomeForgotten:
			if err := s.addSystemNote(ctx, threadID, "Zapomniano: "+cmd.Payload); err != nil {
				return SendResult{}, err
			}
			return SendResult{ThreadID: threadID, Reply: replyForgotten}, nil
		case memory.OutcomeAmbiguous:
			reply := formatCandidates(res.Candidates)
			if err := s.addSystemNote(ctx, threadID, reply); err != nil {
				return SendResult{}, err
			}
			s.metrics.ObserveIndicator("command_forget_ambiguous")
			return SendResult{ThreadID: threadID, Reply: reply, Candidates: res.Candidates}, nil
		default:
			if err := s.addSystemNote(ctx, threadID, replyNoMatch); err != nil {
				return SendResult{}, err
			}
			return SendResult{ThreadID: threadID, Reply: replyNoMatch}, nil
		}
	}
	return SendResult{}, apperr.Validation("unknown command %q", cmd.Kind)
}

func formatCandidates(cands []memory.Candidate) string {
	lines := make([]string, 0, len(cands)+1)
	lines = append(lines, replyAmbiguous)
	for _, c := range cands {
		lines = append(lines, fmt.Sprintf("- #%d: %s — %s", c.ID, c.Key, c.Value))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) addSystemNote(ctx context.Context, threadID, content string) error {
	_, err := s.store.AddMessage(ctx, store.Message{
		ThreadID: threadID,
		Role:     store.RoleSystem,
		Content:  content,
		Kind:     store.KindText,
	})
	return err
}

// NewThread creates an empty thread; memory defaults to on.
func (s *Service) NewThread(ctx context.Context, useMemory *bool) (store.Thread, error) {
	t := store.Thread{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		UseMemory: true,
	}
	if useMemory != nil {
		t.UseMemory = *useMemory
	}
	if err := s.store.CreateThread(ctx, t); err != nil {
		return store.Thread{}, err
	}
	return t, nil
}

// ListThreads returns threads newest first; an empty title shows as the id.
func (s *Service) ListThreads(ctx context.Context) ([]store.Thread, error) {
	threads, err := s.store.ListThreads(ctx)
	if err != nil {
		return nil, err
	}
	for i := range threads {
		if threads[i].Title == "" {
			threads[i].Title = threads[i].ID
		}
	}
	return threads, nil
}

func (s *Service) Messages(ctx context.Context, threadID string) ([]store.Message, error) {
	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, threadID)
}

func (s *Service) RenameThread(ctx context.Context, threadID, title string) error {
	return s.store.SetThreadTitle(ctx, threadID, truncateRunes(strings.TrimSpace(title), labelMaxChars))
}

func (s *Service) SetUseMemory(ctx context.Context, threadID string, useMemory bool) error {
	return s.store.SetThreadUseMemory(ctx, threadID, useMemory)
}

func (s *Service) DeleteThread(ctx context.Context, threadID string) error {
	return s.store.DeleteThread(ctx, threadID)
}

func (s *Service) Anchors(ctx context.Context, threadID string) ([]store.Anchor, error) {
	return s.store.ListAnchors(ctx, threadID)
}

func (s *Service) SetAnchor(ctx context.Context, threadID string, turnIndex int, label string) error {
	if turnIndex < 0 {
		return apperr.Validation("turn_index must not be negative")
	}
	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		return err
	}
	return s.store.SetAnchor(ctx, store.Anchor{
		ThreadID:  threadID,
		TurnIndex: turnIndex,
		Label:     truncateRunes(strings.TrimSpace(label), labelMaxChars),
	})
}

func (s *Service) DeleteAnchor(ctx context.Context, threadID string, turnIndex int) error {
	return s.store.DeleteAnchor(ctx, threadID, turnIndex)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
