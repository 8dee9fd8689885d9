package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
llm:
  provider: openrouter
  model: anthropic/claude-3.5-sonnet
  base_url: https://openrouter.ai/api/v1
  api_key: sk-test
  temperature: 0.4
storage:
  backend: sqlite
  path: /tmp/forge.db
review:
  enabled: true
  min_score: 8
  max_revise_rounds: 3
  prompts_dir: prompts/advisors
  advisors:
    - id: growth
      name: Growth Lead
      focus: acquisition channels
    - id: brand
      name: Brand Editor
      focus: voice consistency
budget:
  invocation_limit: 60s
  reserve: 15s
publish:
  repo: example/site
  dir: posts
server:
  addr: ":9000"
cron:
  interval: 10m
  auto_publish: true
  resume_paused: true
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.Provider != "openrouter" {
		t.Errorf("Provider = %q, want %q", cfg.LLM.Provider, "openrouter")
	}
	if cfg.LLM.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", cfg.LLM.Temperature)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/forge.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Review.Enabled {
		t.Error("Review.Enabled = false, want true")
	}
	if cfg.Review.MaxReviseRounds != 3 {
		t.Errorf("MaxReviseRounds = %d, want 3", cfg.Review.MaxReviseRounds)
	}
	if len(cfg.Review.Advisors) != 2 {
		t.Fatalf("Advisors = %d, want 2", len(cfg.Review.Advisors))
	}
	if cfg.Review.Advisors[1].Name != "Brand Editor" {
		t.Errorf("Advisors[1].Name = %q", cfg.Review.Advisors[1].Name)
	}
	limit, reserve := cfg.Budget.Limits()
	if limit != time.Minute || reserve != 15*time.Second {
		t.Errorf("Limits = %v, %v", limit, reserve)
	}
	if cfg.Cron.Every() != 10*time.Minute {
		t.Errorf("Every = %v, want 10m", cfg.Cron.Every())
	}

	// Defaults fill the gaps.
	if cfg.Publish.Branch != "main" {
		t.Errorf("Publish.Branch = %q, want main", cfg.Publish.Branch)
	}
	if cfg.Cron.Workers != 2 {
		t.Errorf("Cron.Workers = %d, want 2", cfg.Cron.Workers)
	}

	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "llm: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config YAML") {
		t.Errorf("error = %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Review.MaxReviseRounds != 2 {
		t.Errorf("MaxReviseRounds = %d, want 2", cfg.Review.MaxReviseRounds)
	}
	if len(cfg.Review.Advisors) != len(DefaultAdvisors) {
		t.Errorf("Advisors = %d, want %d", len(cfg.Review.Advisors), len(DefaultAdvisors))
	}
	if cfg.Storage.Backend != "" {
		t.Errorf("Storage.Backend = %q, want empty", cfg.Storage.Backend)
	}
	if cfg.Server.Addr == "" {
		t.Error("Server.Addr should have a default")
	}
	if cfg.ContextMode != "direct" {
		t.Errorf("ContextMode = %q, want direct", cfg.ContextMode)
	}

	// Mutating the defaults copy must not leak into the package var.
	cfg.Review.Advisors[0].Name = "changed"
	if DefaultAdvisors[0].Name == "changed" {
		t.Error("applyDefaults aliased DefaultAdvisors")
	}
}

func TestLoadDefault_CurrentDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "forge.yaml"), []byte("server:\n  addr: \":1234\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Server.Addr != ":1234" {
		t.Errorf("Addr = %q, want :1234", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }, "llm.provider"},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.dsn"},
		{"sqlite without path", func(c *Config) { c.Storage = Storage{Backend: "sqlite"} }, "storage.path"},
		{"min score out of range", func(c *Config) { c.Review.MinScore = 11 }, "review.min_score"},
		{"negative revise rounds", func(c *Config) { c.Review.MaxReviseRounds = -1 }, "review.max_revise_rounds"},
		{"advisor without id", func(c *Config) { c.Review.Advisors = []Advisor{{Name: "x"}} }, "review.advisors[0].id"},
		{"duplicate advisor", func(c *Config) {
			c.Review.Advisors = []Advisor{{ID: "a"}, {ID: "a"}}
		}, "review.advisors[1].id"},
		{"bad duration", func(c *Config) { c.Budget.InvocationLimit = "forever" }, "budget.invocation_limit"},
		{"reserve exceeds limit", func(c *Config) {
			c.Budget.InvocationLimit = "10s"
			c.Budget.Reserve = "20s"
		}, "budget.reserve"},
		{"bad cron interval", func(c *Config) { c.Cron.Interval = "often" }, "cron.interval"},
		{"unknown context mode", func(c *Config) { c.ContextMode = "everything" }, "context_mode"},
		{"auto publish without repo", func(c *Config) { c.Cron.AutoPublish = true }, "publish.repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := Validate(cfg)
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", errs, tt.wantField)
			}
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "storage.dsn", Message: "is required"}
	if e.Error() != "storage.dsn: is required" {
		t.Errorf("Error() = %q", e.Error())
	}
}
