package game

import "time"

// Balance holds the tunable game-balance parameters. Zero values are never
// valid; start from DefaultBalance and override.
type Balance struct {
	CrashDuration         time.Duration `yaml:"crash_duration"`
	ManualDebounce        time.Duration `yaml:"manual_debounce"`
	SnapshotThreshold     float64       `yaml:"snapshot_threshold"`
	SingularityPPS        float64       `yaml:"singularity_pps"`
	PrestigeThreshold     float64       `yaml:"prestige_threshold"`
	FinalVictoryThreshold float64       `yaml:"final_victory_threshold"`
	PrestigeOfferCooldown time.Duration `yaml:"prestige_offer_cooldown"`
	OfflineCap            time.Duration `yaml:"offline_cap"`
	StressReliefBase      float64       `yaml:"stress_relief_base"`
	StressReliefPerUnit   float64       `yaml:"stress_relief_per_unit"`
	StressReliefPerTier   float64       `yaml:"stress_relief_per_tier"`
	DecelerationStart     float64       `yaml:"deceleration_start"`
	MaxValuation          float64       `yaml:"max_valuation"`
}

func DefaultBalance() Balance {
	return Balance{
		CrashDuration:         12 * time.Second,
		ManualDebounce:        100 * time.Millisecond,
		SnapshotThreshold:     150000,
		SingularityPPS:        150,
		PrestigeThreshold:     500000,
		FinalVictoryThreshold: 500000,
		PrestigeOfferCooldown: 5 * time.Minute,
		OfflineCap:            12 * time.Hour,
		StressReliefBase:      0.4,
		StressReliefPerUnit:   0.1,
		StressReliefPerTier:   0.12,
		DecelerationStart:     100000,
		MaxValuation:          1000000,
	}
}

// Engine binds a catalog and balance to the pure state-transition functions.
// It holds no per-player state and is safe for concurrent use.
type Engine struct {
	Catalog *Catalog
	Balance Balance
}

func NewEngine(catalog *Catalog, balance Balance) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{Catalog: catalog, Balance: balance}
}

func DefaultEngine() *Engine {
	return NewEngine(DefaultCatalog(), DefaultBalance())
}
