package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentflow/internal/game"
)

var (
	ErrNotFound       = errors.New("save not found")
	ErrCorrupt        = errors.New("save is corrupt")
	ErrDuplicateGrant = errors.New("grant already applied")
)

// Store persists one opaque GameState blob per user, overwritten wholesale.
type Store interface {
	Load(ctx context.Context, userID string) (*game.GameState, error)
	Save(ctx context.Context, userID string, state *game.GameState) error
	Users(ctx context.Context) ([]string, error)
}

type Entry struct {
	UserID        string    `json:"user_id" db:"user_id"`
	Name          string    `json:"name" db:"display_name"`
	Valuation     float64   `json:"valuation" db:"valuation"`
	PrestigeLevel int       `json:"prestige_level" db:"prestige_level"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
	Rank          int       `json:"rank" db:"-"`
}

// Leaderboard keeps one row per user; Submit overwrites it.
type Leaderboard interface {
	Submit(ctx context.Context, e Entry) error
	Top(ctx context.Context, limit int) ([]Entry, error)
}

// GrantLedger records applied commerce grants so a redelivered grant is a no-op.
type GrantLedger interface {
	ClaimGrant(ctx context.Context, userID, grantID, itemID string) error
	// ReleaseGrant forgets a claim whose grant could not be applied, so the
	// payment provider's redelivery is accepted.
	ReleaseGrant(ctx context.Context, userID, grantID string) error
}

// Backend is everything the API process needs from persistence.
type Backend interface {
	Store
	Leaderboard
	GrantLedger
	Close() error
}

func encodeState(s *game.GameState) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return raw, nil
}

// DecodeState never returns a partially trusted state: any decode failure is
// reported as ErrCorrupt.
func DecodeState(raw []byte) (*game.GameState, error) {
	if len(raw) == 0 {
		return nil, ErrCorrupt
	}
	var s game.GameState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.LastTick <= 0 && s.Meta.StartTime <= 0 {
		return nil, fmt.Errorf("%w: missing timestamps", ErrCorrupt)
	}
	s.Normalize()
	return &s, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
