package store

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind controls whether a message is replayed into model context.
type Kind string

const (
	KindText   Kind = "text"
	KindSearch Kind = "search"
	KindImage  Kind = "image"
)

// Thread is a persisted conversation.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	UseMemory bool      `json:"use_memory"`
}

// Message belongs to exactly one thread and is immutable once stored.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"at"`
}

// Anchor is a user-facing bookmark on one turn of a thread.
type Anchor struct {
	ThreadID  string `json:"thread_id,omitempty"`
	TurnIndex int    `json:"turn_index"`
	Label     string `json:"label"`
}

// MemoryEntry is one global memory fact or preference. Entries are never
// physically deleted; IsActive is the soft-delete flag.
type MemoryEntry struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Scope     string    `json:"scope"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryPatch carries a partial update; nil fields are left unchanged.
type MemoryPatch struct {
	Key      *string
	Value    *string
	Scope    *string
	IsActive *bool
}

// Document is the metadata record of an uploaded file.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	OrigName  string    `json:"name"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
