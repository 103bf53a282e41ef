package store

import (
	"context"
	"fmt"
	"log/slog"

	"legischat/config"
)

type ClosableIndex interface {
	Index
	Close() error
}

// Open connects to the index backend selected by the configuration and makes
// sure its schema exists.
func Open(ctx context.Context, cfg *config.Config) (ClosableIndex, error) {
	switch cfg.IndexBackend {
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg.Postgres.ConnString(), cfg.Postgres.Table, cfg.LLM.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("connect to Postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
		return pg, nil
	case "memory":
		m, err := OpenMemoryStore(cfg.MemoryIndexPath)
		if err != nil {
			return nil, err
		}
		slog.Info("[STORE] using in-memory index", "path", cfg.MemoryIndexPath, "records", m.Len())
		return m, nil
	}
	return nil, fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
}
