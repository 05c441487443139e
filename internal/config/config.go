package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type StoreConfig struct {
	Driver      string `env:"AGENTFLOW_STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"AGENTFLOW_SQLITE_PATH" envDefault:"agentflow.db"`
}

type APIConfig struct {
	Addr           string        `env:"AGENTFLOW_API_ADDR" envDefault:":8080"`
	BotToken       string        `env:"AGENTFLOW_BOT_TOKEN"`
	InitDataMaxAge time.Duration `env:"AGENTFLOW_INIT_DATA_MAX_AGE" envDefault:"24h"`
	AllowVisitors  bool          `env:"AGENTFLOW_ALLOW_VISITORS" envDefault:"true"`
	CommerceSecret string        `env:"AGENTFLOW_COMMERCE_SECRET"`
	AdminToken     string        `env:"AGENTFLOW_ADMIN_TOKEN"`
	TickEvery      time.Duration `env:"AGENTFLOW_TICK_EVERY" envDefault:"1s"`
	SaveEvery      time.Duration `env:"AGENTFLOW_SAVE_EVERY" envDefault:"5s"`
	IdleTimeout    time.Duration `env:"AGENTFLOW_SESSION_IDLE_TIMEOUT" envDefault:"15m"`
	BalanceFile    string        `env:"AGENTFLOW_BALANCE_FILE"`
	Store          StoreConfig
}

type WorkerConfig struct {
	Every       time.Duration `env:"AGENTFLOW_LEADERBOARD_EVERY" envDefault:"1m"`
	RunOnce     bool          `env:"AGENTFLOW_WORKER_RUN_ONCE" envDefault:"false"`
	BalanceFile string        `env:"AGENTFLOW_BALANCE_FILE"`
	Store       StoreConfig
}

type CLIConfig struct {
	APIBaseURL string `env:"AFL_API_BASE_URL" envDefault:"http://localhost:8080"`
}

func parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if err := cfg.Store.validate(); err != nil {
		return cfg, err
	}
	if cfg.BotToken == "" && !cfg.AllowVisitors {
		return cfg, fmt.Errorf("AGENTFLOW_BOT_TOKEN is required when visitors are disabled")
	}
	if cfg.TickEvery <= 0 || cfg.SaveEvery <= 0 {
		return cfg, fmt.Errorf("tick and save intervals must be positive")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Store.validate(); err != nil {
		return cfg, err
	}
	if cfg.Every <= 0 {
		return cfg, fmt.Errorf("AGENTFLOW_LEADERBOARD_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg
}

func (s *StoreConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "postgres":
		if strings.TrimSpace(s.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "sqlite":
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("AGENTFLOW_SQLITE_PATH is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown AGENTFLOW_STORE %q (want postgres, sqlite or memory)", s.Driver)
	}
	return nil
}
