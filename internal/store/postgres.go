package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

// PostgresStore persists chat state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			title TEXT NOT NULL DEFAULT '',
			use_memory BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'text',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_id, id);`,
		`CREATE TABLE IF NOT EXISTS anchors (
			id BIGSERIAL PRIMARY KEY,
			thread_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			UNIQUE (thread_id, turn_index)
		);`,
		`CREATE TABLE IF NOT EXISTS global_memory (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT 'other',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			orig_name TEXT NOT NULL DEFAULT '',
			mime TEXT NOT NULL DEFAULT '',
			size BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (s *PostgresStore) CreateThread(ctx context.Context, t Thread) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO threads (id, created_at, title, use_memory) VALUES ($1, $2, $3, $4)`,
		t.ID, nowIfZero(t.CreatedAt), t.Title, t.UseMemory)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (Thread, error) {
	var t Thread
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, title, use_memory FROM threads WHERE id=$1`, id,
	).Scan(&t.ID, &t.CreatedAt, &t.Title, &t.UseMemory)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, apperr.NotFound("thread %s", id)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, title, use_memory FROM threads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	out := []Thread{}
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Title, &t.UseMemory); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetThreadTitle(ctx context.Context, id, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE threads SET title=$1 WHERE id=$2`, title, id)
	if err != nil {
		return fmt.Errorf("update thread title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("thread %s", id)
	}
	return nil
}

func (s *PostgresStore) SetThreadUseMemory(ctx context.Context, id string, useMemory bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE threads SET use_memory=$1 WHERE id=$2`, useMemory, id)
	if err != nil {
		return fmt.Errorf("update thread use_memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("thread %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM threads WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("thread %s", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE thread_id=$1`, id); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM anchors WHERE thread_id=$1`, id); err != nil {
		return fmt.Errorf("delete thread anchors: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, m Message) (Message, error) {
	if m.Kind == "" {
		m.Kind = KindText
	}
	m.CreatedAt = nowIfZero(m.CreatedAt)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (thread_id, role, content, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.ThreadID, string(m.Role), m.Content, string(m.Kind), m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, thread_id, role, content, kind, created_at FROM messages WHERE thread_id=$1 ORDER BY id`,
		threadID)
}

func (s *PostgresStore) RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.ListMessages(ctx, threadID)
	}
	items, err := s.queryMessages(ctx,
		`SELECT id, thread_id, role, content, kind, created_at FROM messages WHERE thread_id=$1 ORDER BY id DESC LIMIT $2`,
		threadID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	reverseMessages(items)
	return items, nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m          Message
			role, kind string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &kind, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = Role(role)
		m.Kind = Kind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListAnchors(ctx context.Context, threadID string) ([]Anchor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT turn_index, label FROM anchors WHERE thread_id=$1 ORDER BY turn_index`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query anchors: %w", err)
	}
	defer rows.Close()

	out := []Anchor{}
	for rows.Next() {
		a := Anchor{ThreadID: threadID}
		if err := rows.Scan(&a.TurnIndex, &a.Label); err != nil {
			return nil, fmt.Errorf("scan anchor row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetAnchor(ctx context.Context, a Anchor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO anchors (thread_id, turn_index, label) VALUES ($1, $2, $3)
		 ON CONFLICT (thread_id, turn_index) DO UPDATE SET label=EXCLUDED.label`,
		a.ThreadID, a.TurnIndex, a.Label)
	if err != nil {
		return fmt.Errorf("upsert anchor: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAnchor(ctx context.Context, threadID string, turnIndex int) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM anchors WHERE thread_id=$1 AND turn_index=$2`, threadID, turnIndex); err != nil {
		return fmt.Errorf("delete anchor: %w", err)
	}
	return nil
}

const pgMemoryColumns = `id, key, value, scope, is_active, created_at, updated_at`

func (s *PostgresStore) AddMemory(ctx context.Context, e MemoryEntry) (MemoryEntry, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO global_memory (key, value, scope, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.Key, e.Value, e.Scope, e.IsActive, nowIfZero(e.CreatedAt), nowIfZero(e.UpdatedAt),
	).Scan(&e.ID)
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("insert memory: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListMemory(ctx context.Context, active *bool) ([]MemoryEntry, error) {
	query := `SELECT ` + pgMemoryColumns + ` FROM global_memory ORDER BY id DESC`
	var args []any
	if active != nil {
		query = `SELECT ` + pgMemoryColumns + ` FROM global_memory WHERE is_active=$1 ORDER BY id DESC`
		args = append(args, *active)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	out := []MemoryEntry{}
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.Key, &e.Value, &e.Scope, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetMemory(ctx context.Context, id int64) (MemoryEntry, error) {
	var e MemoryEntry
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgMemoryColumns+` FROM global_memory WHERE id=$1`, id,
	).Scan(&e.ID, &e.Key, &e.Value, &e.Scope, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
	}
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("get memory: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) UpdateMemory(ctx context.Context, id int64, patch MemoryPatch, now time.Time) (MemoryEntry, error) {
	var e MemoryEntry
	err := s.pool.QueryRow(ctx,
		`UPDATE global_memory SET
			key = COALESCE($1, key),
			value = COALESCE($2, value),
			scope = COALESCE($3, scope),
			is_active = COALESCE($4, is_active),
			updated_at = $5
		 WHERE id=$6
		 RETURNING `+pgMemoryColumns,
		patch.Key, patch.Value, patch.Scope, patch.IsActive, now, id,
	).Scan(&e.ID, &e.Key, &e.Value, &e.Scope, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
	}
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("update memory: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, orig_name, mime, size, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Filename, d.OrigName, d.Mime, d.Size, nowIfZero(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, orig_name, mime, size, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.OrigName, &d.Mime, &d.Size, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, orig_name, mime, size, created_at FROM documents WHERE id=$1`, id,
	).Scan(&d.ID, &d.Filename, &d.OrigName, &d.Mime, &d.Size, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, apperr.NotFound("document %s", id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
