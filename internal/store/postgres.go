package store

import (
	"context"
	"errors"
	"fmt"

	"agentflow/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) Load(ctx context.Context, userID string) (*game.GameState, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `
		SELECT state
		FROM game.saves
		WHERE user_id = $1
	`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load save: %w", err)
	}
	return DecodeState(raw)
}

func (p *Postgres) Save(ctx context.Context, userID string, state *game.GameState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO game.saves (user_id, state, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, userID, string(raw))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (p *Postgres) Users(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT user_id FROM game.saves ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) Submit(ctx context.Context, e Entry) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO game.leaderboard (user_id, display_name, valuation, prestige_level, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    valuation = EXCLUDED.valuation,
		    prestige_level = EXCLUDED.prestige_level,
		    updated_at = now()
	`, e.UserID, e.Name, e.Valuation, e.PrestigeLevel)
	return err
}

func (p *Postgres) Top(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT user_id, display_name, valuation, prestige_level, updated_at
		FROM game.leaderboard
		ORDER BY valuation DESC, user_id ASC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	rank := 1
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Valuation, &e.PrestigeLevel, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ClaimGrant(ctx context.Context, userID, grantID, itemID string) error {
	cmd, err := p.db.Exec(ctx, `
		INSERT INTO game.grants (grant_id, user_id, item_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (grant_id) DO NOTHING
	`, grantID, userID, itemID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateGrant
	}
	return nil
}

func (p *Postgres) ReleaseGrant(ctx context.Context, userID, grantID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM game.grants WHERE grant_id = $1 AND user_id = $2`, grantID, userID)
	return err
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() error { return nil }
