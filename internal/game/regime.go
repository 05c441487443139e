package game

import "sort"

const (
	DefaultRegimeID  = "economy.scale"
	CollapseRegimeID = "economy.collapse"
)

type RegimeMultipliers struct {
	PPS          float64 `json:"pps"`
	ManualGain   float64 `json:"manualGain"`
	StressRelief float64 `json:"stressRelief"`
}

type RegimeThresholds struct {
	CapitalTotal          float64 `json:"capital_total"`
	AutomationRequirement float64 `json:"automation_requirement"`
}

type Deceleration struct {
	Start     float64 `json:"start"`
	Max       float64 `json:"max"`
	Curve     string  `json:"curve"`
	Intensity float64 `json:"intensity"`
}

type RegimeConfig struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	Multipliers    RegimeMultipliers `json:"multipliers"`
	Thresholds     RegimeThresholds  `json:"thresholds"`
	Deceleration   Deceleration      `json:"deceleration"`
	AllowedActions []string          `json:"allowedActions"`
	// OverrideOnly regimes are never picked by the threshold scan.
	OverrideOnly bool `json:"overrideOnly,omitempty"`
}

var regimePresets = []RegimeConfig{
	{
		ID:             DefaultRegimeID,
		Description:    "Aggressive economies of scale with incentives for global automation and controlled inflation.",
		Multipliers:    RegimeMultipliers{PPS: 1.15, ManualGain: 0.9, StressRelief: 1},
		Thresholds:     RegimeThresholds{CapitalTotal: 0, AutomationRequirement: 0},
		Deceleration:   Deceleration{Start: 120000, Max: 1200000, Curve: "logarithmic", Intensity: 0.9},
		AllowedActions: []string{"switch_regime", "adjust_multiplier_range"},
	},
	{
		ID:             "economy.enterprise",
		Description:    "Corporate regime focused on governance, protected capital and smooth growth curves.",
		Multipliers:    RegimeMultipliers{PPS: 1.05, ManualGain: 1, StressRelief: 1.1},
		Thresholds:     RegimeThresholds{CapitalTotal: 3000, AutomationRequirement: 0.6},
		Deceleration:   Deceleration{Start: 110000, Max: 900000, Curve: "linear", Intensity: 0.85},
		AllowedActions: []string{"issue_warning", "switch_regime"},
	},
	{
		ID:             "economy.dao",
		Description:    "Decentralized collective governance with higher tolerance for experiments.",
		Multipliers:    RegimeMultipliers{PPS: 1.08, ManualGain: 1.05, StressRelief: 1.2},
		Thresholds:     RegimeThresholds{CapitalTotal: 6000, AutomationRequirement: 0.75},
		Deceleration:   Deceleration{Start: 100000, Max: 950000, Curve: "logarithmic", Intensity: 0.8},
		AllowedActions: []string{"adjust_multiplier_range", "issue_warning"},
	},
	{
		ID:             "economy.hyperautomation",
		Description:    "Extreme automation with strict resource control and predictive analysis.",
		Multipliers:    RegimeMultipliers{PPS: 1.2, ManualGain: 0.8, StressRelief: 0.95},
		Thresholds:     RegimeThresholds{CapitalTotal: 9000, AutomationRequirement: 0.9},
		Deceleration:   Deceleration{Start: 130000, Max: 1100000, Curve: "logarithmic", Intensity: 0.95},
		AllowedActions: []string{"switch_regime"},
	},
	{
		ID:             "economy.autonomous",
		Description:    "Fully autonomous company: every manual process is gone and the fleet runs itself.",
		Multipliers:    RegimeMultipliers{PPS: 1.3, ManualGain: 0.75, StressRelief: 1.15},
		Thresholds:     RegimeThresholds{CapitalTotal: 20000, AutomationRequirement: 1},
		Deceleration:   Deceleration{Start: 140000, Max: 1200000, Curve: "logarithmic", Intensity: 0.9},
		AllowedActions: []string{"switch_regime", "adjust_multiplier_range"},
	},
	{
		ID:             CollapseRegimeID,
		Description:    "Crisis mode: provisional stability, cost cutting and automatic retreat.",
		Multipliers:    RegimeMultipliers{PPS: 0.75, ManualGain: 0.7, StressRelief: 0.5},
		Thresholds:     RegimeThresholds{CapitalTotal: 12000, AutomationRequirement: 0.5},
		Deceleration:   Deceleration{Start: 80000, Max: 500000, Curve: "linear", Intensity: 0.95},
		AllowedActions: []string{"issue_warning"},
		OverrideOnly:   true,
	},
}

// Regime returns the config for id, falling back to the default preset.
func (e *Engine) Regime(id string) RegimeConfig {
	for _, r := range e.Catalog.Regimes {
		if r.ID == id {
			return r
		}
	}
	for _, r := range e.Catalog.Regimes {
		if r.ID == DefaultRegimeID {
			return r
		}
	}
	if len(e.Catalog.Regimes) > 0 {
		return e.Catalog.Regimes[0]
	}
	return RegimeConfig{ID: DefaultRegimeID, Multipliers: RegimeMultipliers{PPS: 1, ManualGain: 1, StressRelief: 1}}
}

// EvaluateGovernor picks the regime the state should be in. The stress
// override wins outright; otherwise presets are scanned by ascending capital
// threshold and the last one whose gates pass is chosen. It is pure.
func (e *Engine) EvaluateGovernor(s *GameState) (target string, changed bool) {
	current := s.Meta.ActiveRegime
	if current == "" {
		current = DefaultRegimeID
	}

	if s.Resources.Stress >= StressCritical {
		return CollapseRegimeID, current != CollapseRegimeID
	}

	coverage := AutomationCoverage(e.Catalog, s.Inventory)
	sorted := make([]RegimeConfig, 0, len(e.Catalog.Regimes))
	for _, r := range e.Catalog.Regimes {
		if !r.OverrideOnly {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Thresholds.CapitalTotal < sorted[j].Thresholds.CapitalTotal
	})

	candidate := DefaultRegimeID
	for _, r := range sorted {
		if s.Meta.CapitalTotal >= r.Thresholds.CapitalTotal && coverage >= r.Thresholds.AutomationRequirement {
			candidate = r.ID
		}
	}
	return candidate, candidate != current
}
