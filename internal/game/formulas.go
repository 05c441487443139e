package game

import "math"

func PrestigeMultiplier(level int) float64 {
	return 1 + float64(level)*(PrestigeMultiplierBase-1)
}

// AgentCost is the price of the next unit given how many are already owned.
// Prestige discounts the base by half of the prestige bonus.
func AgentCost(baseCost float64, owned, prestigeLevel int) float64 {
	discounted := baseCost / (1 + float64(prestigeLevel)*(PrestigeMultiplierBase-1)*0.5)
	return math.Floor(discounted * math.Pow(CostScalingFactor, float64(owned)))
}

// SynergyMultiplier rewards distinct agent types, not stacked quantity.
func SynergyMultiplier(cat *Catalog, inv []Ownership) float64 {
	distinct := 0
	for _, o := range inv {
		if o.Quantity <= 0 {
			continue
		}
		if _, ok := cat.Agent(o.ID); ok {
			distinct++
		}
	}
	if distinct == 0 {
		return 1
	}
	synergy := 1 + float64(distinct)*0.05
	if distinct == len(cat.Agents) {
		synergy *= 1.5
	}
	return synergy
}

func TotalPPS(cat *Catalog, inv []Ownership, prestigeLevel int, regime RegimeConfig) float64 {
	base := 0.0
	for _, o := range inv {
		agent, ok := cat.Agent(o.ID)
		if !ok {
			continue
		}
		base += agent.YieldPerSecond * float64(o.Quantity)
	}
	return base * SynergyMultiplier(cat, inv) * PrestigeMultiplier(prestigeLevel) * regime.Multipliers.PPS
}

// StatusMultiplier scales manual gains logarithmically with lifetime capital.
func StatusMultiplier(capitalTotal float64) float64 {
	return 1 + math.Log10(math.Max(1, capitalTotal/500))
}

func ManualGain(action ManualActionDef, capitalTotal float64, prestigeLevel int, regime RegimeConfig) float64 {
	return math.Floor(action.BaseGain * StatusMultiplier(capitalTotal) * PrestigeMultiplier(prestigeLevel) * regime.Multipliers.ManualGain)
}

// Valuation is linear below the regime's deceleration start, compressed
// above it, and never exceeds the regime maximum.
func Valuation(pps, hoursSaved, capitalTotal float64, regime RegimeConfig, bal Balance) float64 {
	raw := pps*15 + hoursSaved*12 + capitalTotal/1000

	start := regime.Deceleration.Start
	if start <= 0 {
		start = bal.DecelerationStart
	}
	max := regime.Deceleration.Max
	if max <= 0 {
		max = bal.MaxValuation
	}
	intensity := regime.Deceleration.Intensity
	if intensity <= 0 {
		intensity = 0.9
	}

	if raw > start {
		excess := raw - start
		factor := math.Max(0.1, 1-(excess/max)*intensity)
		raw = start + excess*factor
	}
	return math.Min(raw, max)
}

func IsActionAutomated(cat *Catalog, inv []Ownership, actionID string) bool {
	for _, o := range inv {
		if o.Quantity <= 0 {
			continue
		}
		agent, ok := cat.Agent(o.ID)
		if !ok {
			continue
		}
		for _, id := range agent.Automates {
			if id == actionID {
				return true
			}
		}
	}
	return false
}

func AutomationCoverage(cat *Catalog, inv []Ownership) float64 {
	if len(cat.Actions) == 0 {
		return 1
	}
	automated := 0
	for _, a := range cat.Actions {
		if IsActionAutomated(cat, inv, a.ID) {
			automated++
		}
	}
	return float64(automated) / float64(len(cat.Actions))
}

func AllActionsAutomated(cat *Catalog, inv []Ownership) bool {
	for _, a := range cat.Actions {
		if !IsActionAutomated(cat, inv, a.ID) {
			return false
		}
	}
	return true
}

// PaybackSeconds is how long one unit takes to earn back its cost.
func PaybackSeconds(cost, yieldPerSecond float64) float64 {
	if yieldPerSecond <= 0 {
		return math.Inf(1)
	}
	return cost / yieldPerSecond
}

func (e *Engine) PPS(s *GameState) float64 {
	return TotalPPS(e.Catalog, s.Inventory, s.Meta.PrestigeLevel, e.Regime(s.Meta.ActiveRegime))
}

func (e *Engine) Valuation(s *GameState) float64 {
	return Valuation(e.PPS(s), s.Resources.HoursSaved, s.Meta.CapitalTotal, e.Regime(s.Meta.ActiveRegime), e.Balance)
}

func (e *Engine) NextCost(s *GameState, agentID string) (float64, error) {
	agent, ok := e.Catalog.Agent(agentID)
	if !ok {
		return 0, ErrUnknownAgent
	}
	return AgentCost(agent.BaseCost, s.Owned(agentID), s.Meta.PrestigeLevel), nil
}

func (e *Engine) CanPrestige(s *GameState) bool {
	return e.Valuation(s) >= e.Balance.PrestigeThreshold
}
