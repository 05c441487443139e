package game

import "time"

// Prestige sells the company: resources and agents reset, the permanent level
// goes up by one. Identity and the final-victory latch survive.
func (e *Engine) Prestige(s *GameState, now time.Time) error {
	if !e.CanPrestige(s) {
		return ErrPrestigeLocked
	}
	level := s.Meta.PrestigeLevel + 1
	victory := s.Meta.FinalVictoryReached
	user := s.Meta.User

	*s = *NewState(now)
	s.Meta.PrestigeLevel = level
	s.Meta.FinalVictoryReached = victory
	s.Meta.User = user
	return nil
}

// FullReset wipes everything except identity, including the prestige level.
func (e *Engine) FullReset(s *GameState, now time.Time) {
	user := s.Meta.User
	*s = *NewState(now)
	s.Meta.User = user
}
