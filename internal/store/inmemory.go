package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	threads   map[string]Thread
	messages  map[string][]Message
	anchors   map[string]map[int]string
	memory    []MemoryEntry
	documents map[string]Document
	nextMsgID int64
	nextMemID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:   make(map[string]Thread),
		messages:  make(map[string][]Message),
		anchors:   make(map[string]map[int]string),
		documents: make(map[string]Document),
	}
}

func (s *InMemoryStore) CreateThread(_ context.Context, t Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.threads[t.ID] = t
	return nil
}

func (s *InMemoryStore) GetThread(_ context.Context, id string) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return Thread{}, apperr.NotFound("thread %s", id)
	}
	return t, nil
}

func (s *InMemoryStore) ListThreads(_ context.Context) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) SetThreadTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return apperr.NotFound("thread %s", id)
	}
	t.Title = title
	s.threads[id] = t
	return nil
}

func (s *InMemoryStore) SetThreadUseMemory(_ context.Context, id string, useMemory bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return apperr.NotFound("thread %s", id)
	}
	t.UseMemory = useMemory
	s.threads[id] = t
	return nil
}

func (s *InMemoryStore) DeleteThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return apperr.NotFound("thread %s", id)
	}
	delete(s.threads, id)
	delete(s.messages, id)
	delete(s.anchors, id)
	return nil
}

func (s *InMemoryStore) AddMessage(_ context.Context, m Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsgID++
	m.ID = s.nextMsgID
	if m.Kind == "" {
		m.Kind = KindText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages[m.ThreadID] = append(s.messages[m.ThreadID], m)
	return m, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[threadID]
	out := make([]Message, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, threadID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[threadID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) ListAnchors(_ context.Context, threadID string) ([]Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byTurn := s.anchors[threadID]
	out := make([]Anchor, 0, len(byTurn))
	for turn, label := range byTurn {
		out = append(out, Anchor{ThreadID: threadID, TurnIndex: turn, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnIndex < out[j].TurnIndex })
	return out, nil
}

func (s *InMemoryStore) SetAnchor(_ context.Context, a Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTurn, ok := s.anchors[a.ThreadID]
	if !ok {
		byTurn = make(map[int]string)
		s.anchors[a.ThreadID] = byTurn
	}
	byTurn[a.TurnIndex] = a.Label
	return nil
}

func (s *InMemoryStore) DeleteAnchor(_ context.Context, threadID string, turnIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.anchors[threadID], turnIndex)
	return nil
}

func (s *InMemoryStore) AddMemory(_ context.Context, e MemoryEntry) (MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMemID++
	e.ID = s.nextMemID
	s.memory = append(s.memory, e)
	return e, nil
}

func (s *InMemoryStore) ListMemory(_ context.Context, active *bool) ([]MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MemoryEntry, 0, len(s.memory))
	for i := len(s.memory) - 1; i >= 0; i-- {
		e := s.memory[i]
		if active != nil && e.IsActive != *active {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) GetMemory(_ context.Context, id int64) (MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.memory {
		if e.ID == id {
			return e, nil
		}
	}
	return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
}

func (s *InMemoryStore) UpdateMemory(_ context.Context, id int64, patch MemoryPatch, now time.Time) (MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.memory {
		if s.memory[i].ID != id {
			continue
		}
		e := &s.memory[i]
		if patch.Key != nil {
			e.Key = *patch.Key
		}
		if patch.Value != nil {
			e.Value = *patch.Value
		}
		if patch.Scope != nil {
			e.Scope = *patch.Scope
		}
		if patch.IsActive != nil {
			e.IsActive = *patch.IsActive
		}
		e.UpdatedAt = now
		return *e, nil
	}
	return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
}

func (s *InMemoryStore) CreateDocument(_ context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.documents[d.ID] = d
	return nil
}

func (s *InMemoryStore) ListDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return Document{}, apperr.NotFound("document %s", id)
	}
	return d, nil
}

func (s *InMemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
