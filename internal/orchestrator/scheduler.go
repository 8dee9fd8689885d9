// Package orchestrator drives multi-step generation runs: foundation
// documents in dependency order, content pieces in caller order, and the
// research steps that produce an idea's analysis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/ideaforge/internal/config"
	appctx "github.com/lucasnoah/ideaforge/internal/context"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/review"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// ErrUnknownItem is returned when a requested work item is not part of the
// plan. Nothing has run when it is returned.
var ErrUnknownItem = errors.New("unknown work item")

// ErrRunning is returned by Reset while a worker holds the subject's lease.
var ErrRunning = errors.New("run in progress")

// Pipeline kinds, also the subject prefixes.
const (
	KindFoundation = "foundation"
	KindContent    = "content"
	KindResearch   = "research"
)

// Subject builds the progress subject for a run kind and id.
func Subject(kind, id string) string { return kind + ":" + id }

// ParseSubject splits a subject into kind and id.
func ParseSubject(subject string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(subject, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid subject %q", subject)
	}
	switch kind {
	case KindFoundation, KindContent, KindResearch:
		return kind, id, nil
	}
	return "", "", fmt.Errorf("invalid subject %q: unknown kind %q", subject, kind)
}

// EventLogger receives audit events. *db.DB satisfies it.
type EventLogger interface {
	LogPipelineEvent(subject, event, item, detail string) error
}

// Reviewer critiques a draft. *review.Reviewer satisfies it.
type Reviewer interface {
	Review(ctx context.Context, kind, draft string) ([]review.Critique, error)
}

// RunResult describes what one invocation did.
type RunResult struct {
	Subject        string          `json:"subject"`
	Status         pipeline.Status `json:"status"`
	Completed      []string        `json:"completed,omitempty"`
	Failed         []string        `json:"failed,omitempty"`
	Skipped        []string        `json:"skipped,omitempty"`
	Paused         bool            `json:"paused,omitempty"`
	AlreadyRunning bool            `json:"already_running,omitempty"`
}

// Scheduler composes the generation pipelines.
type Scheduler struct {
	repo     *repo.Repo
	store    *pipeline.Store
	runner   *stage.Runner
	builder  *appctx.Builder
	reviewer Reviewer
	review   config.Review
	events   EventLogger
	progress io.Writer // live progress output; nil = silent
}

// NewScheduler creates a Scheduler. events may be nil.
func NewScheduler(r *repo.Repo, store *pipeline.Store, runner *stage.Runner, builder *appctx.Builder, events EventLogger) *Scheduler {
	return &Scheduler{
		repo:    r,
		store:   store,
		runner:  runner,
		builder: builder,
		events:  events,
	}
}

// SetReview enables the advisor review loop for documents and pieces.
func (s *Scheduler) SetReview(rv Reviewer, cfg config.Review) {
	s.reviewer = rv
	s.review = cfg
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (s *Scheduler) SetProgress(w io.Writer) {
	s.progress = w
}

// Store returns the progress store.
func (s *Scheduler) Store() *pipeline.Store {
	return s.store
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.progress != nil {
		fmt.Fprintf(s.progress, "→ "+format+"\n", args...)
	}
}

func (s *Scheduler) event(subject, event, item, detail string) {
	if s.events != nil {
		_ = s.events.LogPipelineEvent(subject, event, item, detail)
	}
}

// Status returns the best-known progress for subject; never an error for an
// unknown subject.
func (s *Scheduler) Status(ctx context.Context, subject string) (*pipeline.Progress, error) {
	return s.store.Poll(ctx, subject)
}

// Reset clears progress, any expired lease and session state for subject so the
// next run starts fresh. It refuses with ErrRunning while a worker holds
// the lease.
func (s *Scheduler) Reset(ctx context.Context, subject string) error {
	leased, err := s.store.Leased(ctx, subject)
	if err != nil {
		return fmt.Errorf("reset %s: %w", subject, err)
	}
	if leased {
		return fmt.Errorf("reset %s: %w", subject, ErrRunning)
	}
	if err := s.store.Reset(ctx, subject); err != nil {
		return fmt.Errorf("reset %s: %w", subject, err)
	}
	s.event(subject, "reset", "", "")
	s.logf("%s: reset", subject)
	return nil
}

// Resume re-invokes the pipeline recorded under subject for the items it had
// planned.
func (s *Scheduler) Resume(ctx context.Context, subject string) (*RunResult, error) {
	kind, id, err := ParseSubject(subject)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindFoundation:
		kinds, err := parseKinds(p.Planned)
		if err != nil {
			return nil, err
		}
		return s.RunFoundation(ctx, id, kinds)
	case KindContent:
		return s.RunContent(ctx, id, p.Planned)
	default:
		return s.RunResearch(ctx, id)
	}
}

// item is one unit of a run.
type item struct {
	id   string
	name string
	run  func(ctx context.Context) stage.Outcome
	// onPause restores the work item when the run pauses before it finishes.
	onPause func(ctx context.Context)
}

// run walks items in order under the subject's lease. Items already in
// CompletedIDs are skipped. Progress is persisted after every item. A paused
// outcome stops the walk and leaves the rest pending.
func (s *Scheduler) run(ctx context.Context, subject, kind string, items []item) (*RunResult, error) {
	// Bookkeeping must land even when ctx is cancelled during shutdown.
	persist := context.WithoutCancel(ctx)

	owner, ok, err := s.store.Acquire(persist, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logf("%s: already running, trigger ignored", subject)
		res := &RunResult{Subject: subject, AlreadyRunning: true, Status: pipeline.StatusRunning}
		if p, err := s.store.Poll(persist, subject); err == nil {
			res.Status = p.Status
		}
		return res, nil
	}
	defer func() { _ = s.store.Release(persist, subject, owner) }()

	planned := make([]string, len(items))
	for i, it := range items {
		planned[i] = it.id
	}
	p, err := s.store.Begin(persist, subject, kind, planned)
	if err != nil {
		return nil, err
	}
	s.event(subject, "started", "", fmt.Sprintf("run %s invocation %d", p.RunID, p.Invocations))
	s.logf("%s: run %s (%d items, %d already complete)", subject, p.RunID, len(items), len(p.CompletedIDs))

	res := &RunResult{Subject: subject}
	for _, it := range items {
		if p.IsCompleted(it.id) {
			res.Skipped = append(res.Skipped, it.id)
			continue
		}
		if s.runner.ShouldPause(ctx) {
			res.Paused = true
			break
		}

		if _, err := s.store.Update(persist, subject, func(p *pipeline.Progress) {
			p.SetStep(it.id, it.name, pipeline.StatusRunning, "")
		}); err != nil {
			return nil, err
		}
		s.logf("%s: %s", subject, it.name)

		out := it.run(ctx)

		switch out.Kind {
		case stage.OutcomeCompleted:
			p, err = s.store.Update(persist, subject, func(p *pipeline.Progress) {
				p.MarkCompleted(it.id)
				p.SetStep(it.id, it.name, pipeline.StatusComplete, "")
			})
			res.Completed = append(res.Completed, it.id)
			s.event(subject, "item_complete", it.id, "")

		case stage.OutcomePaused:
			if it.onPause != nil {
				it.onPause(persist)
			}
			p, err = s.store.Update(persist, subject, func(p *pipeline.Progress) {
				p.SetStep(it.id, it.name, pipeline.StatusPending, "paused")
			})
			res.Paused = true

		default:
			msg := "failed"
			if out.Err != nil {
				msg = out.Err.Error()
			}
			if errors.Is(out.Err, llm.ErrNotConfigured) {
				// Configuration errors abort the run and are not retried.
				_, _ = s.store.Update(persist, subject, func(p *pipeline.Progress) {
					p.SetStep(it.id, it.name, pipeline.StatusPending, "")
					p.Status = pipeline.StatusError
					p.Error = msg
				})
				s.event(subject, "error", it.id, msg)
				return nil, out.Err
			}
			p, err = s.store.Update(persist, subject, func(p *pipeline.Progress) {
				p.SetStep(it.id, it.name, pipeline.StatusError, msg)
			})
			res.Failed = append(res.Failed, it.id)
			s.event(subject, "item_error", it.id, msg)
			s.logf("%s: %s failed: %s", subject, it.id, msg)
		}
		if err != nil {
			return nil, err
		}
		if res.Paused {
			break
		}
		_ = s.store.Renew(persist, subject, owner)
	}

	p, err = s.store.Update(persist, subject, func(p *pipeline.Progress) {
		switch {
		case res.Paused:
			p.Status = pipeline.StatusPaused
			p.CurrentStep = "paused"
		case len(p.Failed()) > 0:
			p.Status = pipeline.StatusError
			p.Error = fmt.Sprintf("%d item(s) failed: %s", len(p.Failed()), strings.Join(p.Failed(), ", "))
		case p.Done():
			p.Status = pipeline.StatusComplete
			p.CurrentStep = "done"
		default:
			p.Status = pipeline.StatusPending
		}
	})
	if err != nil {
		return nil, err
	}
	res.Status = p.Status

	if res.Paused {
		s.event(subject, "paused", "", fmt.Sprintf("%d/%d complete", len(p.CompletedIDs), len(p.Planned)))
		s.logf("%s: paused, %d/%d complete", subject, len(p.CompletedIDs), len(p.Planned))
	} else {
		s.event(subject, string(p.Status), "", p.Error)
		s.logf("%s: %s (%d completed, %d failed, %d skipped)", subject, p.Status, len(res.Completed), len(res.Failed), len(res.Skipped))
	}
	return res, nil
}
