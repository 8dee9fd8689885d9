package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedBackends = map[string]bool{
	"file":     true,
	"sqlite":   true,
	"postgres": true,
	"memory":   true,
}

var recognizedContextModes = map[string]bool{
	"full":    true,
	"direct":  true,
	"minimal": true,
}

var recognizedProviders = map[string]bool{
	"openai":     true,
	"openrouter": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
// Missing credentials are not validation errors: they surface as
// "not configured" from the components that need them.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.LLM.Provider != "" && !recognizedProviders[cfg.LLM.Provider] {
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unrecognized provider %q", cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "llm.temperature", Message: "must be between 0 and 2"})
	}

	s := cfg.Storage
	switch {
	case s.Backend == "":
	case !recognizedBackends[s.Backend]:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unrecognized backend %q", s.Backend),
		})
	case s.Backend == "postgres" && s.DSN == "":
		errs = append(errs, ValidationError{Field: "storage.dsn", Message: "is required for the postgres backend"})
	case (s.Backend == "sqlite" || s.Backend == "file") && s.Path == "":
		errs = append(errs, ValidationError{Field: "storage.path", Message: fmt.Sprintf("is required for the %s backend", s.Backend)})
	}

	if cfg.Review.MinScore < 0 || cfg.Review.MinScore > 10 {
		errs = append(errs, ValidationError{Field: "review.min_score", Message: "must be between 0 and 10"})
	}
	if cfg.Review.MaxReviseRounds < 0 {
		errs = append(errs, ValidationError{Field: "review.max_revise_rounds", Message: "must not be negative"})
	}
	ids := make(map[string]bool)
	for i, a := range cfg.Review.Advisors {
		field := fmt.Sprintf("review.advisors[%d].id", i)
		if a.ID == "" {
			errs = append(errs, ValidationError{Field: field, Message: "is required"})
			continue
		}
		if ids[a.ID] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate advisor ID %q", a.ID)})
		}
		ids[a.ID] = true
	}

	if cfg.ContextMode != "" && !recognizedContextModes[cfg.ContextMode] {
		errs = append(errs, ValidationError{
			Field:   "context_mode",
			Message: fmt.Sprintf("unrecognized mode %q (want full, direct or minimal)", cfg.ContextMode),
		})
	}

	validateDuration("budget.invocation_limit", cfg.Budget.InvocationLimit, &errs)
	validateDuration("budget.reserve", cfg.Budget.Reserve, &errs)
	if limit, reserve := cfg.Budget.Limits(); limit > 0 && reserve >= limit {
		errs = append(errs, ValidationError{Field: "budget.reserve", Message: "must be smaller than budget.invocation_limit"})
	}

	validateDuration("cron.interval", cfg.Cron.Interval, &errs)
	if cfg.Cron.Workers < 0 {
		errs = append(errs, ValidationError{Field: "cron.workers", Message: "must not be negative"})
	}
	if cfg.Cron.AutoPublish && cfg.Publish.Repo == "" {
		errs = append(errs, ValidationError{Field: "publish.repo", Message: "is required when cron.auto_publish is set"})
	}

	return errs
}

func validateDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d < 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must not be negative"})
	}
}
