package store

import (
	"context"
	"fmt"
	"strings"

	"agentflow/internal/config"
	"agentflow/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pooledPostgres struct {
	*Postgres
	pool *pgxpool.Pool
}

func (p pooledPostgres) Close() error {
	p.pool.Close()
	return nil
}

// Open builds the backend named by cfg.Driver: postgres, sqlite or memory.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		return pooledPostgres{Postgres: NewPostgres(pool), pool: pool}, nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
