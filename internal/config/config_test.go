package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("AGENTFLOW_STORE", "memory")
	t.Setenv("PORT", "9090")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr=%q want :9090", cfg.Addr)
	}
	if cfg.TickEvery != time.Second || cfg.SaveEvery != 5*time.Second || cfg.IdleTimeout != 15*time.Minute {
		t.Fatalf("unexpected intervals: %+v", cfg)
	}
	if !cfg.AllowVisitors {
		t.Fatalf("visitors should default to allowed")
	}
}

func TestLoadAPIFromEnvValidation(t *testing.T) {
	t.Setenv("AGENTFLOW_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}

	t.Setenv("AGENTFLOW_STORE", "redis")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected unknown store to fail")
	}

	t.Setenv("AGENTFLOW_STORE", "sqlite")
	t.Setenv("AGENTFLOW_ALLOW_VISITORS", "false")
	t.Setenv("AGENTFLOW_BOT_TOKEN", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing bot token to fail")
	}
}

func TestLoadEngineOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	body := `
balance:
  crash_duration: 30s
  prestige_threshold: 250000
agents:
  - id: agent_support_v1
    name: Support
    base_cost: 50
    yield_per_second: 2
    automates: [acao_responder_cliente]
    daily_minutes_saved: 30
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	e, err := LoadEngine(path)
	if err != nil {
		t.Fatalf("load engine: %v", err)
	}
	if e.Balance.CrashDuration != 30*time.Second || e.Balance.PrestigeThreshold != 250000 {
		t.Fatalf("overrides not applied: %+v", e.Balance)
	}
	if e.Balance.ManualDebounce != 100*time.Millisecond {
		t.Fatalf("unset field lost its default: %v", e.Balance.ManualDebounce)
	}
	if len(e.Catalog.Agents) != 1 || e.Catalog.Agents[0].BaseCost != 50 {
		t.Fatalf("agents not replaced: %+v", e.Catalog.Agents)
	}
	if len(e.Catalog.Actions) != 4 {
		t.Fatalf("actions should keep defaults")
	}
}

func TestLoadEngineRejectsBadBalance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	if err := os.WriteFile(path, []byte("balance:\n  crash_duration: 0s\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadEngine(path); err == nil {
		t.Fatalf("expected zero crash duration to fail")
	}
	if e, err := LoadEngine(""); err != nil || e == nil {
		t.Fatalf("empty path should give the default engine")
	}
}
