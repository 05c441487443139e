package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"agentflow/internal/game"
)

// RebuildLeaderboard recomputes every saved player's row from their save.
// Corrupt saves are skipped; the count of rows written is returned.
func RebuildLeaderboard(ctx context.Context, st Store, board Leaderboard, engine *game.Engine, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	users, err := st.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	written := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		state, err := st.Load(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrNotFound) {
				logger.Warn("leaderboard skip", "user_id", userID, "err", err)
				continue
			}
			return written, fmt.Errorf("load %s: %w", userID, err)
		}
		name := userID
		if u := state.Meta.User; u != nil {
			switch {
			case u.Name != "":
				name = u.Name
			case u.Username != "":
				name = u.Username
			}
		}
		err = board.Submit(ctx, Entry{
			UserID:        userID,
			Name:          name,
			Valuation:     engine.Valuation(state),
			PrestigeLevel: state.Meta.PrestigeLevel,
		})
		if err != nil {
			return written, fmt.Errorf("submit %s: %w", userID, err)
		}
		written++
	}
	return written, nil
}
