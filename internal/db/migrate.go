package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS game`,
	`CREATE TABLE IF NOT EXISTS game.saves (
		user_id TEXT PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS game.leaderboard (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		valuation DOUBLE PRECISION NOT NULL,
		prestige_level INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS leaderboard_valuation_idx ON game.leaderboard (valuation DESC)`,
	`CREATE TABLE IF NOT EXISTS game.grants (
		grant_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
