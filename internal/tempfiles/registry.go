package tempfiles

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

const DefaultTTL = 300 * time.Second

// Entry is one transient file tracked by the registry.
type Entry struct {
	ID         string    `json:"id"`
	Path       string    `json:"-"`
	Mime       string    `json:"mime"`
	IsDocument bool      `json:"is_document"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type item struct {
	entry Entry
	timer *time.Timer
}

// Registry maps ids to files on disk and deletes each file once its TTL
// elapses. Expiry is fire-and-forget and idempotent.
type Registry struct {
	mu       sync.Mutex
	items    map[string]*item
	ttl      time.Duration
	onExpire func(Entry)
	observe  func(event string, active int)
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		items: make(map[string]*item),
		ttl:   ttl,
	}
}

// SetExpireHook registers a callback run after an entry expires and its file
// is gone.
func (r *Registry) SetExpireHook(hook func(Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// SetObserver registers a callback for register/expire/remove events.
func (r *Registry) SetObserver(fn func(event string, active int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe = fn
}

func (r *Registry) TTL() time.Duration { return r.ttl }

// Register tracks path under id and schedules its expiry. Re-registering an
// id replaces the previous entry and restarts its timer.
func (r *Registry) Register(id, path, mime string, isDocument bool) Entry {
	now := time.Now().UTC()
	e := Entry{
		ID:         id,
		Path:       path,
		Mime:       mime,
		IsDocument: isDocument,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}

	it := &item{entry: e}
	r.mu.Lock()
	if old, ok := r.items[id]; ok {
		old.timer.Stop()
	}
	r.items[id] = it
	it.timer = time.AfterFunc(r.ttl, func() { r.expireItem(it) })
	active, observe := len(r.items), r.observe
	r.mu.Unlock()

	if observe != nil {
		observe("register", active)
	}
	return e
}

func (r *Registry) Resolve(id string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return Entry{}, apperr.NotFound("file %s", id)
	}
	return it.entry, nil
}

// Has reports whether id is still live.
func (r *Registry) Has(id string) bool {
	_, err := r.Resolve(id)
	return err == nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Expire removes the entry and its file, then runs the expire hook. Unknown
// ids are a no-op.
func (r *Registry) Expire(id string) {
	r.expire(id, nil)
}

// expireItem is the timer path; a stale timer of a replaced entry does nothing.
func (r *Registry) expireItem(it *item) {
	r.expire(it.entry.ID, it)
}

func (r *Registry) expire(id string, want *item) {
	e, ok := r.take(id, want, "expire")
	if !ok {
		return
	}
	r.mu.Lock()
	hook := r.onExpire
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

// Remove deletes the entry and its file without running the expire hook.
func (r *Registry) Remove(id string) bool {
	_, ok := r.take(id, nil, "remove")
	return ok
}

func (r *Registry) take(id string, want *item, event string) (Entry, bool) {
	r.mu.Lock()
	it, ok := r.items[id]
	if ok && want != nil && it != want {
		ok = false
	}
	if ok {
		it.timer.Stop()
		delete(r.items, id)
	}
	active, observe := len(r.items), r.observe
	r.mu.Unlock()
	if !ok {
		return Entry{}, false
	}

	removeFile(it.entry.Path)
	if observe != nil {
		observe(event, active)
	}
	return it.entry, true
}

// Close expires every remaining entry.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Expire(id)
	}
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("tempfiles: remove %s: %v", path, err)
	}
}
