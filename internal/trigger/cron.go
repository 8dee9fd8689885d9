// Package trigger drives pipelines on a fixed cadence: it picks up paused
// and abandoned runs and, when enabled, publishes the next finished piece.
package trigger

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/ideaforge/internal/config"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
	"github.com/lucasnoah/ideaforge/internal/publish"
	"github.com/lucasnoah/ideaforge/internal/worker"
)

// PublishSubject is the queue subject for publish tasks.
const PublishSubject = "publish"

// Resumer re-invokes a recorded pipeline. *orchestrator.Scheduler satisfies it.
type Resumer interface {
	Resume(ctx context.Context, subject string) (*orchestrator.RunResult, error)
}

// NextPublisher publishes the next ready piece. *publish.Publisher satisfies it.
type NextPublisher interface {
	PublishNext(ctx context.Context) (*publish.Result, error)
}

// TickResult summarises one tick.
type TickResult struct {
	Resumed    []string `json:"resumed"`
	Skipped    []string `json:"skipped"`
	Publishing bool     `json:"publishing"`
}

// Cron submits background work to a worker.Queue. Running two ticks
// concurrently is safe: the queue drops subjects it already holds and the
// scheduler's lease guards anything the queue does not know about.
type Cron struct {
	store    *pipeline.Store
	resumer  Resumer
	pub      NextPublisher
	queue    *worker.Queue
	cfg      config.Cron
	progress io.Writer
}

// NewCron creates a Cron. pub may be nil when publishing is not configured.
func NewCron(store *pipeline.Store, resumer Resumer, pub NextPublisher, queue *worker.Queue, cfg config.Cron) *Cron {
	return &Cron{store: store, resumer: resumer, pub: pub, queue: queue, cfg: cfg}
}

// SetProgress sets the writer for progress output.
func (c *Cron) SetProgress(w io.Writer) {
	c.progress = w
}

func (c *Cron) logf(format string, args ...interface{}) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, "→ "+format+"\n", args...)
	}
}

// Tick runs one pass. Paused runs are resumed when cron.resume_paused is
// set; runs left in "running" whose lease has expired (the worker died)
// are always picked up again.
func (c *Cron) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{}

	var candidates []pipeline.Progress
	if c.cfg.ResumePaused {
		paused, err := c.store.List(ctx, pipeline.StatusPaused)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, paused...)
	}
	running, err := c.store.List(ctx, pipeline.StatusRunning)
	if err != nil {
		return nil, err
	}
	for _, p := range running {
		leased, err := c.store.Leased(ctx, p.Subject)
		if err != nil {
			return nil, err
		}
		if !leased {
			candidates = append(candidates, p)
		}
	}

	for _, p := range candidates {
		subject := p.Subject
		ok, err := c.queue.Submit(worker.Task{Subject: subject, Run: func(ctx context.Context) error {
			_, err := c.resumer.Resume(ctx, subject)
			return err
		}})
		if err != nil {
			return res, err
		}
		if ok {
			res.Resumed = append(res.Resumed, subject)
			c.logf("resuming %s (%s)", subject, p.Status)
		} else {
			res.Skipped = append(res.Skipped, subject)
		}
	}

	if c.cfg.AutoPublish && c.pub != nil {
		ok, err := c.queue.Submit(worker.Task{Subject: PublishSubject, Run: func(ctx context.Context) error {
			r, err := c.pub.PublishNext(ctx)
			if err == nil && r != nil && !r.AlreadyPublished {
				c.logf("published %s (%s)", r.Record.PieceID, r.Record.CommitSHA)
			}
			return err
		}})
		if err != nil {
			return res, err
		}
		res.Publishing = ok
	}
	return res, nil
}

// Run ticks every cron.interval until ctx is done. Tick errors are logged
// and do not stop the loop.
func (c *Cron) Run(ctx context.Context) error {
	every := c.cfg.Every()
	if every <= 0 {
		return fmt.Errorf("invalid cron interval %q", c.cfg.Interval)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if _, err := c.Tick(ctx); err != nil {
			c.logf("tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
