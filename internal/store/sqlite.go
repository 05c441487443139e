package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agentflow/internal/game"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite is the single-file Backend used for local play and development.
type SQLite struct {
	conn *sqlx.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &SQLite{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *SQLite) Close() error {
	return db.conn.Close()
}

func (db *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		user_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaderboard (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		valuation REAL NOT NULL,
		prestige_level INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grants (
		grant_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaderboard_valuation ON leaderboard(valuation DESC);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func (db *SQLite) Load(ctx context.Context, userID string) (*game.GameState, error) {
	var raw string
	err := db.conn.GetContext(ctx, &raw, `SELECT state FROM saves WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load save: %w", err)
	}
	return DecodeState([]byte(raw))
}

func (db *SQLite) Save(ctx context.Context, userID string, state *game.GameState) error {
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO saves (user_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, userID, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (db *SQLite) Users(ctx context.Context) ([]string, error) {
	var out []string
	if err := db.conn.SelectContext(ctx, &out, `SELECT user_id FROM saves ORDER BY user_id`); err != nil {
		return nil, err
	}
	return out, nil
}

type sqliteEntry struct {
	UserID        string  `db:"user_id"`
	Name          string  `db:"display_name"`
	Valuation     float64 `db:"valuation"`
	PrestigeLevel int     `db:"prestige_level"`
	UpdatedAt     int64   `db:"updated_at"`
}

func (db *SQLite) Submit(ctx context.Context, e Entry) error {
	at := e.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO leaderboard (user_id, display_name, valuation, prestige_level, updated_at)
		VALUES (:user_id, :display_name, :valuation, :prestige_level, :updated_at)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			valuation = excluded.valuation,
			prestige_level = excluded.prestige_level,
			updated_at = excluded.updated_at
	`, sqliteEntry{
		UserID:        e.UserID,
		Name:          e.Name,
		Valuation:     e.Valuation,
		PrestigeLevel: e.PrestigeLevel,
		UpdatedAt:     at.UnixMilli(),
	})
	return err
}

func (db *SQLite) Top(ctx context.Context, limit int) ([]Entry, error) {
	var rows []sqliteEntry
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT user_id, display_name, valuation, prestige_level, updated_at
		FROM leaderboard
		ORDER BY valuation DESC, user_id ASC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for i, r := range rows {
		out = append(out, Entry{
			UserID:        r.UserID,
			Name:          r.Name,
			Valuation:     r.Valuation,
			PrestigeLevel: r.PrestigeLevel,
			UpdatedAt:     time.UnixMilli(r.UpdatedAt).UTC(),
			Rank:          i + 1,
		})
	}
	return out, nil
}

func (db *SQLite) ClaimGrant(ctx context.Context, userID, grantID, itemID string) error {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO grants (grant_id, user_id, item_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(grant_id) DO NOTHING
	`, grantID, userID, itemID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateGrant
	}
	return nil
}

func (db *SQLite) ReleaseGrant(ctx context.Context, userID, grantID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM grants WHERE grant_id = ? AND user_id = ?`, grantID, userID)
	return err
}
