package store

import (
	"context"
	"time"
)

type ThreadStore interface {
	CreateThread(ctx context.Context, t Thread) error
	GetThread(ctx context.Context, id string) (Thread, error)
	ListThreads(ctx context.Context) ([]Thread, error)
	SetThreadTitle(ctx context.Context, id, title string) error
	SetThreadUseMemory(ctx context.Context, id string, useMemory bool) error
	// DeleteThread removes the thread together with its messages and anchors.
	DeleteThread(ctx context.Context, id string) error
}

type MessageStore interface {
	AddMessage(ctx context.Context, m Message) (Message, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	// RecentMessages returns at most limit of the newest messages in
	// chronological order.
	RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}

type AnchorStore interface {
	ListAnchors(ctx context.Context, threadID string) ([]Anchor, error)
	SetAnchor(ctx context.Context, a Anchor) error
	DeleteAnchor(ctx context.Context, threadID string, turnIndex int) error
}

type MemoryStore interface {
	AddMemory(ctx context.Context, e MemoryEntry) (MemoryEntry, error)
	// ListMemory returns entries newest first; a nil filter returns all.
	ListMemory(ctx context.Context, active *bool) ([]MemoryEntry, error)
	GetMemory(ctx context.Context, id int64) (MemoryEntry, error)
	UpdateMemory(ctx context.Context, id int64, patch MemoryPatch, now time.Time) (MemoryEntry, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d Document) error
	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Store persists threads, messages, anchors, global memory and documents.
type Store interface {
	ThreadStore
	MessageStore
	AnchorStore
	MemoryStore
	DocumentStore
	Close() error
}
