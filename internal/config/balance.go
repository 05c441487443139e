package config

import (
	"fmt"
	"os"

	"agentflow/internal/game"

	"gopkg.in/yaml.v3"
)

type balanceDoc struct {
	Balance game.Balance           `yaml:"balance"`
	Agents  []game.AgentDef        `yaml:"agents"`
	Actions []game.ManualActionDef `yaml:"actions"`
}

// LoadEngine builds the game engine, overlaying the YAML file at path on the
// default balance and catalog. Fields absent from the file keep their
// defaults; an agents or actions list replaces the default list wholesale.
func LoadEngine(path string) (*game.Engine, error) {
	if path == "" {
		return game.DefaultEngine(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance file: %w", err)
	}

	doc := balanceDoc{Balance: game.DefaultBalance()}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse balance file: %w", err)
	}
	if err := validateBalance(doc.Balance); err != nil {
		return nil, err
	}

	cat := game.DefaultCatalog()
	if len(doc.Agents) > 0 {
		cat.Agents = doc.Agents
	}
	if len(doc.Actions) > 0 {
		cat.Actions = doc.Actions
	}
	return game.NewEngine(cat, doc.Balance), nil
}

func validateBalance(b game.Balance) error {
	switch {
	case b.CrashDuration <= 0:
		return fmt.Errorf("balance: crash_duration must be positive")
	case b.ManualDebounce < 0:
		return fmt.Errorf("balance: manual_debounce must not be negative")
	case b.PrestigeThreshold <= 0:
		return fmt.Errorf("balance: prestige_threshold must be positive")
	case b.MaxValuation <= 0:
		return fmt.Errorf("balance: max_valuation must be positive")
	case b.OfflineCap < 0:
		return fmt.Errorf("balance: offline_cap must not be negative")
	}
	return nil
}
