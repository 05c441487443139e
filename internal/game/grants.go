package game

import (
	"fmt"
	"math"
	"time"
)

type OfflineReport struct {
	Elapsed time.Duration `json:"elapsed"`
	Credit  time.Duration `json:"credited"`
	Earned  float64       `json:"earned"`
}

// CatchUp credits passive income for the time since the last tick, capped by
// Balance.OfflineCap. It runs once when a session is hydrated.
func (e *Engine) CatchUp(s *GameState, now time.Time) (OfflineReport, []Event) {
	if s.LastTick <= 0 {
		s.LastTick = now.UnixMilli()
		return OfflineReport{}, nil
	}
	elapsed := now.Sub(time.UnixMilli(s.LastTick))
	if elapsed <= 0 {
		return OfflineReport{}, nil
	}
	credit := elapsed
	if e.Balance.OfflineCap > 0 && credit > e.Balance.OfflineCap {
		credit = e.Balance.OfflineCap
	}

	earned := math.Floor(e.PPS(s) * credit.Seconds())
	s.Resources.Capital += earned
	s.Meta.CapitalTotal += earned
	s.LastTick = now.UnixMilli()

	report := OfflineReport{Elapsed: elapsed, Credit: credit, Earned: earned}
	if earned <= 0 {
		return report, nil
	}
	return report, []Event{{
		Kind:    EventOfflineEarnings,
		Message: fmt.Sprintf("Your agents earned %.0f while you were away.", earned),
		At:      now.UnixMilli(),
		Data:    map[string]any{"earned": earned, "seconds": credit.Seconds()},
	}}
}

// ApplyGrant applies a paid store item. Payment is validated upstream; the
// caller is trusted and idempotency is enforced by the grant ledger.
func (e *Engine) ApplyGrant(s *GameState, itemID string, now time.Time) (Event, error) {
	item, ok := e.Catalog.Item(itemID)
	if !ok {
		return Event{}, ErrUnknownItem
	}

	data := map[string]any{"item": item.ID}
	switch item.Effect {
	case EffectCapital:
		s.Resources.Capital += item.Value
		data["capital"] = item.Value
	case EffectInsurance:
		s.Resources.Stress = 0
		s.Meta.IsCrashed = false
		s.Meta.CrashEndTime = 0
	case EffectTimeWarp:
		earned := math.Floor(e.PPS(s) * item.Value)
		s.Resources.Capital += earned
		s.Meta.CapitalTotal += earned
		data["capital"] = earned
	default:
		return Event{}, fmt.Errorf("%w: effect %q", ErrUnknownItem, item.Effect)
	}

	return Event{
		Kind:    EventGrantApplied,
		Key:     item.ID,
		Message: fmt.Sprintf("%s applied.", item.Title),
		At:      now.UnixMilli(),
		Data:    data,
	}, nil
}
