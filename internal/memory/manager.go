package memory

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/store"
)

const (
	ScopeStyle = "style"
	ScopeVoice = "voice"
	ScopeFacts = "facts"
	ScopeOther = "other"

	DefaultProfileMaxChars = 800
)

// scopeOrder fixes the order and labels of profile snippet groups.
var scopeOrder = []struct {
	scope string
	label string
}{
	{ScopeStyle, "Preferencje stylu"},
	{ScopeVoice, "Preferencje głosu"},
	{ScopeFacts, "Fakty"},
	{ScopeOther, "Inne"},
}

// Outcome is the result branch of ForgetByPhrase.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeForgotten Outcome = "forgotten"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Candidate is an active entry matching a forget phrase.
type Candidate struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ForgetResult reports which of the 0 / 1 / N branches ForgetByPhrase took.
type ForgetResult struct {
	Outcome    Outcome
	Forgotten  *store.MemoryEntry
	Candidates []Candidate
}

// Update is a partial change to a memory entry.
type Update struct {
	Key      *string
	Value    *string
	Scope    *string
	IsActive *bool
}

// Hook observes memory events (add, update, forget, restore).
type Hook func(event string)

// Manager owns global memory semantics on top of a MemoryStore.
type Manager struct {
	store    store.MemoryStore
	maxChars int
	now      func() time.Time
	hook     Hook
}

func NewManager(s store.MemoryStore, profileMaxChars int) *Manager {
	if profileMaxChars <= 0 {
		profileMaxChars = DefaultProfileMaxChars
	}
	return &Manager{
		store:    s,
		maxChars: profileMaxChars,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Manager) SetHook(h Hook) {
	m.hook = h
}

func (m *Manager) emit(event string) {
	if m.hook != nil {
		m.hook(event)
	}
}

// ValidScope reports whether scope is one of the known scopes.
func ValidScope(scope string) bool {
	for _, s := range scopeOrder {
		if s.scope == scope {
			return true
		}
	}
	return false
}

func normalizeScope(scope string) (string, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return ScopeOther, nil
	}
	if !ValidScope(scope) {
		return "", apperr.Validation("unknown memory scope %q", scope)
	}
	return scope, nil
}

// Add inserts a new active entry with a trimmed value.
func (m *Manager) Add(ctx context.Context, key, value, scope string) (store.MemoryEntry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return store.MemoryEntry{}, apperr.Validation("memory value is empty")
	}
	sc, err := normalizeScope(scope)
	if err != nil {
		return store.MemoryEntry{}, err
	}
	now := m.now()
	e, err := m.store.AddMemory(ctx, store.MemoryEntry{
		Key:       strings.TrimSpace(key),
		Value:     value,
		Scope:     sc,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return store.MemoryEntry{}, err
	}
	m.emit("add")
	return e, nil
}

// List returns entries newest first; a nil filter returns every entry.
func (m *Manager) List(ctx context.Context, active *bool) ([]store.MemoryEntry, error) {
	return m.store.ListMemory(ctx, active)
}

// Update applies only the supplied fields and always refreshes updated_at.
func (m *Manager) Update(ctx context.Context, id int64, u Update) (store.MemoryEntry, error) {
	patch := store.MemoryPatch{IsActive: u.IsActive}
	if u.Key != nil {
		k := strings.TrimSpace(*u.Key)
		patch.Key = &k
	}
	if u.Value != nil {
		v := strings.TrimSpace(*u.Value)
		if v == "" {
			return store.MemoryEntry{}, apperr.Validation("memory value is empty")
		}
		patch.Value = &v
	}
	if u.Scope != nil {
		sc, err := normalizeScope(*u.Scope)
		if err != nil {
			return store.MemoryEntry{}, err
		}
		patch.Scope = &sc
	}
	e, err := m.store.UpdateMemory(ctx, id, patch, m.now())
	if err != nil {
		return store.MemoryEntry{}, err
	}
	m.emit("update")
	return e, nil
}

func (m *Manager) Forget(ctx context.Context, id int64) (store.MemoryEntry, error) {
	return m.setActive(ctx, id, false, "forget")
}

func (m *Manager) Restore(ctx context.Context, id int64) (store.MemoryEntry, error) {
	return m.setActive(ctx, id, true, "restore")
}

func (m *Manager) setActive(ctx context.Context, id int64, active bool, event string) (store.MemoryEntry, error) {
	e, err := m.store.UpdateMemory(ctx, id, store.MemoryPatch{IsActive: &active}, m.now())
	if err != nil {
		return store.MemoryEntry{}, err
	}
	m.emit(event)
	return e, nil
}

// ProfileSnippet renders active entries grouped by scope, one line per
// non-empty group, truncated to the configured number of runes.
func (m *Manager) ProfileSnippet(ctx context.Context) (string, error) {
	active := true
	entries, err := m.store.ListMemory(ctx, &active)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	groups := make(map[string][]string, len(scopeOrder))
	for _, e := range entries {
		sc := e.Scope
		if !ValidScope(sc) {
			sc = ScopeOther
		}
		groups[sc] = append(groups[sc], e.Value)
	}

	lines := make([]string, 0, len(scopeOrder))
	for _, s := range scopeOrder {
		if vals := groups[s.scope]; len(vals) > 0 {
			lines = append(lines, s.label+": "+strings.Join(vals, "; "))
		}
	}
	return truncateRunes(strings.Join(lines, "\n"), m.maxChars), nil
}

// ForgetByPhrase matches the phrase case-insensitively against "key value" of
// each active entry. A single match is forgotten; several matches are only
// reported back as candidates.
func (m *Manager) ForgetByPhrase(ctx context.Context, phrase string) (ForgetResult, error) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return ForgetResult{Outcome: OutcomeNone}, nil
	}

	active := true
	entries, err := m.store.ListMemory(ctx, &active)
	if err != nil {
		return ForgetResult{}, err
	}

	var matches []store.MemoryEntry
	for _, e := range entries {
		hay := strings.ToLower(e.Key) + " " + strings.ToLower(e.Value)
		if strings.Contains(hay, phrase) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return ForgetResult{Outcome: OutcomeNone}, nil
	case 1:
		forgotten, err := m.Forget(ctx, matches[0].ID)
		if err != nil {
			return ForgetResult{}, err
		}
		return ForgetResult{Outcome: OutcomeForgotten, Forgotten: &forgotten}, nil
	default:
		cands := make([]Candidate, 0, len(matches))
		for _, e := range matches {
			cands = append(cands, Candidate{ID: e.ID, Key: e.Key, Value: e.Value})
		}
		m.emit("forget_ambiguous")
		return ForgetResult{Outcome: OutcomeAmbiguous, Candidates: cands}, nil
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
