package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/lucasnoah/ideaforge/internal/canvas"
	"github.com/lucasnoah/ideaforge/internal/config"
	appctx "github.com/lucasnoah/ideaforge/internal/context"
	"github.com/lucasnoah/ideaforge/internal/db"
	"github.com/lucasnoah/ideaforge/internal/github"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
	"github.com/lucasnoah/ideaforge/internal/publish"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/review"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// app holds every component a command may need, wired from one config.
type app struct {
	cfg       *config.Config
	kv        kv.Store
	events    *db.DB
	repo      *repo.Repo
	store     *pipeline.Store
	llm       llm.Completer
	runner    *stage.Runner
	scheduler *orchestrator.Scheduler
	canvas    *canvas.Engine
	publisher *publish.Publisher
}

// loadConfig reads --config, or the default locations, then applies FORGE_
// environment overrides. With no config file at all the defaults are used.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
		if errors.Is(err, config.ErrNoConfig) {
			cfg, err = config.Default(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	for key, dst := range map[string]*string{
		"storage.backend": &cfg.Storage.Backend,
		"storage.path":    &cfg.Storage.Path,
		"storage.dsn":     &cfg.Storage.DSN,
		"llm.provider":    &cfg.LLM.Provider,
		"llm.model":       &cfg.LLM.Model,
		"llm.base_url":    &cfg.LLM.BaseURL,
		"llm.api_key":     &cfg.LLM.APIKey,
		"publish.repo":    &cfg.Publish.Repo,
		"publish.branch":  &cfg.Publish.Branch,
		"server.addr":     &cfg.Server.Addr,
		"events_db":       &cfg.EventsDB,
		"templates_dir":   &cfg.TemplatesDir,
		"context_mode":    &cfg.ContextMode,
	} {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
}

// openApp wires the components. progress receives live run output and may be
// nil. The caller must Close the app.
func openApp(ctx context.Context, progress io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", errs[0])
	}

	store, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	events, err := db.Open(cfg.EventsDB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	var completer llm.Completer = llm.Unconfigured{}
	if c, err := llm.New(cfg.LLM); err == nil {
		completer = c
	} else if !errors.Is(err, llm.ErrNotConfigured) {
		store.Close()
		events.Close()
		return nil, err
	}

	r := repo.New(store)
	ps := pipeline.NewStore(store)
	runner := stage.NewRunner(completer, cfg.TemplatesDir)
	runner.SetProgress(progress)

	sched := orchestrator.NewScheduler(r, ps, runner,
		appctx.NewBuilder(r, appctx.FidelityMode(cfg.ContextMode)), events)
	sched.SetProgress(progress)
	reviewer := review.NewReviewer(completer, cfg.Review.Advisors,
		review.NewPromptCache(cfg.Review.PromptsDir), cfg.TemplatesDir)
	sched.SetReview(reviewer, cfg.Review)

	return &app{
		cfg:       cfg,
		kv:        store,
		events:    events,
		repo:      r,
		store:     ps,
		llm:       completer,
		runner:    runner,
		scheduler: sched,
		canvas:    canvas.NewEngine(r, completer, cfg.TemplatesDir, events),
		publisher: publish.NewPublisher(r, github.NewClient(&github.ExecRunner{}), cfg.Publish, events),
	}, nil
}

// startBudget puts one-shot runs under the configured invocation ceiling.
func (a *app) startBudget() {
	limit, reserve := a.cfg.Budget.Limits()
	if limit > 0 {
		a.runner.SetBudget(stage.NewBudget(limit, reserve))
	}
}

func (a *app) Close() error {
	err := a.events.Close()
	if cerr := a.kv.Close(); err == nil {
		err = cerr
	}
	return err
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, progress io.Writer, fn func(context.Context, *app) error) error {
	a, err := openApp(ctx, progress)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
