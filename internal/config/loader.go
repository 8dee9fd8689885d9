package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a forge configuration from the given YAML file path.
// After parsing, it fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// ErrNoConfig is returned by LoadDefault when no config file exists.
var ErrNoConfig = errors.New("no forge config found")

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./forge.yaml, ~/.forge/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"forge.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".forge", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// Default returns a configuration with only defaults applied. Storage is
// left unset so dependent commands report "not configured".
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// DefaultAdvisors is the advisor panel used when none are configured.
var DefaultAdvisors = []Advisor{
	{ID: "strategist", Name: "Strategist", Focus: "market logic, differentiation and internal consistency"},
	{ID: "copy-editor", Name: "Copy Editor", Focus: "clarity, tone and concision"},
	{ID: "skeptic", Name: "Skeptic", Focus: "unsupported claims and missing evidence"},
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}

	if cfg.Review.MinScore == 0 {
		cfg.Review.MinScore = 7
	}
	if cfg.Review.MaxReviseRounds == 0 {
		cfg.Review.MaxReviseRounds = 2
	}
	if len(cfg.Review.Advisors) == 0 {
		cfg.Review.Advisors = append([]Advisor(nil), DefaultAdvisors...)
	}

	if cfg.Publish.Branch == "" {
		cfg.Publish.Branch = "main"
	}
	if cfg.Publish.Dir == "" {
		cfg.Publish.Dir = "content"
	}

	if cfg.ContextMode == "" {
		cfg.ContextMode = "direct"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":17432"
	}

	if cfg.Cron.Interval == "" {
		cfg.Cron.Interval = "5m"
	}
	if cfg.Cron.Workers == 0 {
		cfg.Cron.Workers = 2
	}

	if cfg.Storage.Backend == "file" && cfg.Storage.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.Path = filepath.Join(home, ".forge", "data")
		}
	}
	if cfg.EventsDB == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.EventsDB = filepath.Join(home, ".forge", "events.db")
		}
	}
}
