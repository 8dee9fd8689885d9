package config

import "time"

// Config is the top-level configuration structure parsed from forge.yaml.
type Config struct {
	LLM     LLM     `yaml:"llm"`
	Storage Storage `yaml:"storage"`
	Review  Review  `yaml:"review"`
	Budget  Budget  `yaml:"budget"`
	Publish Publish `yaml:"publish"`
	Server  Server  `yaml:"server"`
	Cron    Cron    `yaml:"cron"`
	// TemplatesDir holds project overrides for built-in prompt templates.
	TemplatesDir string `yaml:"templates_dir"`
	// EventsDB is the SQLite file for the pipeline event log.
	EventsDB string `yaml:"events_db"`
	// ContextMode controls how much of the prerequisite documents is put in
	// front of the model: "full", "direct" or "minimal".
	ContextMode string `yaml:"context_mode"`
}

// LLM configures the completion service. Provider is one of "openai" or
// "openrouter"; both speak the OpenAI wire protocol.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// Storage selects the key-value backend.
type Storage struct {
	Backend string `yaml:"backend"` // "file", "sqlite", "postgres", "memory"
	Path    string `yaml:"path"`    // file directory or sqlite database
	DSN     string `yaml:"dsn"`     // postgres connection string
}

// Review configures the advisor review loop.
type Review struct {
	Enabled         bool      `yaml:"enabled"`
	MinScore        float64   `yaml:"min_score"`
	MaxReviseRounds int       `yaml:"max_revise_rounds"`
	Advisors        []Advisor `yaml:"advisors"`
	PromptsDir      string    `yaml:"prompts_dir"`
}

// Advisor is one reviewer persona.
type Advisor struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Focus string `yaml:"focus"`
}

// Budget describes the external wall-clock ceiling a single invocation runs
// under. Runs pause once less than Reserve remains.
type Budget struct {
	InvocationLimit string `yaml:"invocation_limit"`
	Reserve         string `yaml:"reserve"`
}

// Publish names the repository content pieces are committed to.
type Publish struct {
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
	Dir    string `yaml:"dir"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Cron configures the scheduled trigger.
type Cron struct {
	Interval     string `yaml:"interval"`
	AutoPublish  bool   `yaml:"auto_publish"`
	ResumePaused bool   `yaml:"resume_paused"`
	Workers      int    `yaml:"workers"`
}

// Limits returns the parsed invocation limit and reserve. Unparseable values
// are reported by Validate; here they count as zero.
func (b Budget) Limits() (limit, reserve time.Duration) {
	limit, _ = time.ParseDuration(b.InvocationLimit)
	reserve, _ = time.ParseDuration(b.Reserve)
	return limit, reserve
}

// Every returns the parsed cron interval.
func (c Cron) Every() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}
