package store

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a Store backend.
type Options struct {
	// Mode is one of auto, sqlite, postgres or memory.
	Mode        string
	SQLitePath  string
	DatabaseURL string
}

// NewStore creates a postgres-backed store when a database URL is configured,
// a SQLite store when a path is set, otherwise an in-memory store.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "memory":
		return NewInMemoryStore(), nil
	case "postgres":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("store mode postgres requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case "sqlite":
		return openSQLite(opts.SQLitePath)
	case "auto":
		if strings.TrimSpace(opts.DatabaseURL) != "" {
			return NewPostgresStore(ctx, opts.DatabaseURL)
		}
		if strings.TrimSpace(opts.SQLitePath) != "" {
			return openSQLite(opts.SQLitePath)
		}
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", opts.Mode)
	}
}

func openSQLite(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store mode sqlite requires SQLITE_PATH")
	}
	return NewSQLiteStore(path)
}
