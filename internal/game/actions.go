package game

import "time"

type Purchase struct {
	AgentID  string  `json:"agent_id"`
	Cost     float64 `json:"cost"`
	Quantity int     `json:"quantity"`
	NextCost float64 `json:"next_cost"`
}

type ManualResult struct {
	ActionID string  `json:"action_id"`
	Gain     float64 `json:"gain"`
	Stress   float64 `json:"stress"`
}

// AgentUnlocked reports whether the catalog unlock threshold has been reached.
func (e *Engine) AgentUnlocked(s *GameState, agent AgentDef) bool {
	return s.Meta.CapitalTotal >= agent.UnlockAt
}

// BuyAgent buys one unit of agentID. A refusal leaves s untouched.
func (e *Engine) BuyAgent(s *GameState, agentID string) (Purchase, error) {
	agent, ok := e.Catalog.Agent(agentID)
	if !ok {
		return Purchase{}, ErrUnknownAgent
	}
	if !e.AgentUnlocked(s, agent) {
		return Purchase{}, ErrAgentLocked
	}
	owned := s.Owned(agentID)
	cost := AgentCost(agent.BaseCost, owned, s.Meta.PrestigeLevel)
	if s.Resources.Capital < cost {
		return Purchase{}, ErrInsufficientFunds
	}

	s.Resources.Capital = floorCapital(s.Resources.Capital - cost)
	s.Resources.HoursSaved += agent.DailyMinutesSaved / 60
	found := false
	for i := range s.Inventory {
		if s.Inventory[i].ID == agentID {
			s.Inventory[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		s.Inventory = append(s.Inventory, Ownership{ID: agentID, Quantity: 1})
	}

	return Purchase{
		AgentID:  agentID,
		Cost:     cost,
		Quantity: owned + 1,
		NextCost: AgentCost(agent.BaseCost, owned+1, s.Meta.PrestigeLevel),
	}, nil
}

// ManualAction performs one click of actionID. Stress is added without
// clamping; the next tick clamps it after the crash check has seen it.
func (e *Engine) ManualAction(s *GameState, actionID string, now time.Time) (ManualResult, error) {
	action, ok := e.Catalog.Action(actionID)
	if !ok {
		return ManualResult{}, ErrUnknownAction
	}
	if s.Meta.IsCrashed {
		return ManualResult{}, ErrCrashed
	}
	nowMS := now.UnixMilli()
	if s.LastManualAction > 0 && nowMS-s.LastManualAction < e.Balance.ManualDebounce.Milliseconds() {
		return ManualResult{}, ErrDebounced
	}
	if IsActionAutomated(e.Catalog, s.Inventory, actionID) {
		return ManualResult{}, ErrActionAutomated
	}

	gain := ManualGain(action, s.Meta.CapitalTotal, s.Meta.PrestigeLevel, e.Regime(s.Meta.ActiveRegime))
	s.Resources.Capital += gain
	s.Meta.CapitalTotal += gain
	s.Resources.Stress += action.StressCost
	s.LastManualAction = nowMS

	return ManualResult{ActionID: actionID, Gain: gain, Stress: s.Resources.Stress}, nil
}
