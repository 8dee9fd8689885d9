package kv

import (
	"context"
	"fmt"

	"github.com/lucasnoah/ideaforge/internal/config"
)

// Open builds the backend selected in cfg. An empty backend is
// ErrNotConfigured: nothing falls back to local files unless asked to.
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, ErrNotConfigured
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: storage.path is required for the file backend", ErrNotConfigured)
		}
		return NewFileStore(cfg.Path)
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: storage.path is required for the sqlite backend", ErrNotConfigured)
		}
		return OpenSQLiteStore(cfg.Path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: storage.dsn is required for the postgres backend", ErrNotConfigured)
		}
		return OpenPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
