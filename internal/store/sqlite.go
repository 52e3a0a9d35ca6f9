package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ent0n29/cheapchat/internal/apperr"
)

// SQLiteStore is the default local store. Timestamps are stored as unix
// milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=3000;`,
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			created_at_unix_ms INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			use_memory INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_unix_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);`,
		`CREATE TABLE IF NOT EXISTS anchors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			UNIQUE(thread_id, turn_index)
		);`,
		`CREATE TABLE IF NOT EXISTS global_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT 'other',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at_unix_ms INTEGER NOT NULL,
			updated_at_unix_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			orig_name TEXT NOT NULL DEFAULT '',
			created_at_unix_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", stmt, err)
		}
	}

	// Columns added after the first release; older databases get them here.
	late := []struct{ table, column, ddl string }{
		{"messages", "kind", `ALTER TABLE messages ADD COLUMN kind TEXT NOT NULL DEFAULT 'text'`},
		{"documents", "mime", `ALTER TABLE documents ADD COLUMN mime TEXT NOT NULL DEFAULT ''`},
		{"documents", "size", `ALTER TABLE documents ADD COLUMN size INTEGER NOT NULL DEFAULT 0`},
	}
	for _, c := range late {
		has, err := sqliteColumnExists(db, c.table, c.column)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", c.table, err)
		}
		if has {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func sqliteColumnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &primaryKey); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func toUnixMs(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixMilli()
}

func fromUnixMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (s *SQLiteStore) CreateThread(ctx context.Context, t Thread) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, created_at_unix_ms, title, use_memory) VALUES (?, ?, ?, ?)`,
		t.ID, toUnixMs(t.CreatedAt), t.Title, boolInt(t.UseMemory))
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (Thread, error) {
	var (
		t  Thread
		ms int64
		um int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at_unix_ms, title, use_memory FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &ms, &t.Title, &um)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, apperr.NotFound("thread %s", id)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread: %w", err)
	}
	t.CreatedAt = fromUnixMs(ms)
	t.UseMemory = um != 0
	return t, nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at_unix_ms, title, use_memory FROM threads ORDER BY created_at_unix_ms DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	out := []Thread{}
	for rows.Next() {
		var (
			t  Thread
			ms int64
			um int
		)
		if err := rows.Scan(&t.ID, &ms, &t.Title, &um); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		t.CreatedAt = fromUnixMs(ms)
		t.UseMemory = um != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetThreadTitle(ctx context.Context, id, title string) error {
	return s.updateThread(ctx, id, `UPDATE threads SET title = ? WHERE id = ?`, title)
}

func (s *SQLiteStore) SetThreadUseMemory(ctx context.Context, id string, useMemory bool) error {
	return s.updateThread(ctx, id, `UPDATE threads SET use_memory = ? WHERE id = ?`, boolInt(useMemory))
}

func (s *SQLiteStore) updateThread(ctx context.Context, id, query string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("thread %s", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("thread %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM anchors WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("delete thread anchors: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddMessage(ctx context.Context, m Message) (Message, error) {
	if m.Kind == "" {
		m.Kind = KindText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (thread_id, role, content, kind, created_at_unix_ms) VALUES (?, ?, ?, ?, ?)`,
		m.ThreadID, string(m.Role), m.Content, string(m.Kind), toUnixMs(m.CreatedAt))
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("message id: %w", err)
	}
	m.ID = id
	return m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, thread_id, role, content, kind, created_at_unix_ms FROM messages WHERE thread_id = ? ORDER BY id`,
		threadID)
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.ListMessages(ctx, threadID)
	}
	items, err := s.queryMessages(ctx,
		`SELECT id, thread_id, role, content, kind, created_at_unix_ms FROM messages WHERE thread_id = ? ORDER BY id DESC LIMIT ?`,
		threadID, limit)
	if err != nil {
		return nil, err
	}
	reverseMessages(items)
	return items, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m          Message
			role, kind string
			ms         int64
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &kind, &ms); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = Role(role)
		m.Kind = Kind(kind)
		m.CreatedAt = fromUnixMs(ms)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func reverseMessages(items []Message) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func (s *SQLiteStore) ListAnchors(ctx context.Context, threadID string) ([]Anchor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_index, label FROM anchors WHERE thread_id = ? ORDER BY turn_index`, threadID)
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

func (s *SQLiteStore) SetAnchor(ctx context.Context, a Anchor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anchors (thread_id, turn_index, label) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id, turn_index) DO UPDATE SET label = excluded.label`,
		a.ThreadID, a.TurnIndex, a.Label)
	if err != nil {
		return fmt.Errorf("upsert anchor: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAnchor(ctx context.Context, threadID string, turnIndex int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM anchors WHERE thread_id = ? AND turn_index = ?`, threadID, turnIndex); err != nil {
		return fmt.Errorf("delete anchor: %w", err)
	}
	return nil
}

const sqliteMemoryColumns = `id, key, value, scope, is_active, created_at_unix_ms, updated_at_unix_ms`

func (s *SQLiteStore) AddMemory(ctx context.Context, e MemoryEntry) (MemoryEntry, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO global_memory (key, value, scope, is_active, created_at_unix_ms, updated_at_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, e.Value, e.Scope, boolInt(e.IsActive), toUnixMs(e.CreatedAt), toUnixMs(e.UpdatedAt))
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("memory id: %w", err)
	}
	e.ID = id
	return e, nil
}

func (s *SQLiteStore) ListMemory(ctx context.Context, active *bool) ([]MemoryEntry, error) {
	query := `SELECT ` + sqliteMemoryColumns + ` FROM global_memory ORDER BY id DESC`
	var args []any
	if active != nil {
		query = `SELECT ` + sqliteMemoryColumns + ` FROM global_memory WHERE is_active = ? ORDER BY id DESC`
		args = append(args, boolInt(*active))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	out := []MemoryEntry{}
	for rows.Next() {
		e, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMemory(row rowScanner) (MemoryEntry, error) {
	var (
		e              MemoryEntry
		active         int
		created, updAt int64
	)
	if err := row.Scan(&e.ID, &e.Key, &e.Value, &e.Scope, &active, &created, &updAt); err != nil {
		return MemoryEntry{}, err
	}
	e.IsActive = active != 0
	e.CreatedAt = fromUnixMs(created)
	e.UpdatedAt = fromUnixMs(updAt)
	return e, nil
}

func (s *SQLiteStore) GetMemory(ctx context.Context, id int64) (MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMemoryColumns+` FROM global_memory WHERE id = ?`, id)
	e, err := scanSQLiteMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
	}
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("get memory: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, id int64, patch MemoryPatch, now time.Time) (MemoryEntry, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if patch.Key != nil {
		sets = append(sets, "key = ?")
		args = append(args, *patch.Key)
	}
	if patch.Value != nil {
		sets = append(sets, "value = ?")
		args = append(args, *patch.Value)
	}
	if patch.Scope != nil {
		sets = append(sets, "scope = ?")
		args = append(args, *patch.Scope)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*patch.IsActive))
	}
	sets = append(sets, "updated_at_unix_ms = ?")
	args = append(args, toUnixMs(now), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE global_memory SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return MemoryEntry{}, apperr.NotFound("memory entry %d", id)
	}
	return s.GetMemory(ctx, id)
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, orig_name, mime, size, created_at_unix_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.OrigName, d.Mime, d.Size, toUnixMs(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, orig_name, mime, size, created_at_unix_ms FROM documents ORDER BY created_at_unix_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanSQLiteDocument(row rowScanner) (Document, error) {
	var (
		d  Document
		ms int64
	)
	if err := row.Scan(&d.ID, &d.Filename, &d.OrigName, &d.Mime, &d.Size, &ms); err != nil {
		return Document{}, err
	}
	d.CreatedAt = fromUnixMs(ms)
	return d, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, orig_name, mime, size, created_at_unix_ms FROM documents WHERE id = ?`, id)
	d, err := scanSQLiteDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, apperr.NotFound("document %s", id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
