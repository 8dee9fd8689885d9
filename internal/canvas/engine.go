// Package canvas maintains the validation canvas of an idea: the five
// assumptions it rests on, their evidence, pivots and the kill decision.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/prompt"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

var (
	// ErrCanvasKilled is returned for any mutation of a killed canvas.
	ErrCanvasKilled = errors.New("canvas is killed")
	// ErrPivotOutOfRange is returned when a pivot index does not name a
	// stored suggestion.
	ErrPivotOutOfRange = errors.New("pivot suggestion index out of range")
	// ErrUnknownAssumption is returned for an assumption type the canvas
	// does not track.
	ErrUnknownAssumption = errors.New("unknown assumption type")
)

// maxSuggestions caps the ranked pivot list kept per assumption.
const maxSuggestions = 5

// EventLogger receives audit events. *db.DB satisfies it.
type EventLogger interface {
	LogPipelineEvent(subject, event, item, detail string) error
}

// Engine mutates canvases. Killed canvases are terminal: every mutation
// returns ErrCanvasKilled.
type Engine struct {
	repo         *repo.Repo
	llm          llm.Completer
	templatesDir string
	events       EventLogger
	now          func() time.Time
}

// NewEngine creates an Engine. llm is only needed for SuggestPivots; events
// may be nil.
func NewEngine(r *repo.Repo, c llm.Completer, templatesDir string, events EventLogger) *Engine {
	return &Engine{
		repo:         r,
		llm:          c,
		templatesDir: templatesDir,
		events:       events,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) event(ideaID, event, item, detail string) {
	if e.events != nil {
		_ = e.events.LogPipelineEvent("canvas:"+ideaID, event, item, detail)
	}
}

// Get returns the canvas for ideaID.
func (e *Engine) Get(ctx context.Context, ideaID string) (*repo.Canvas, error) {
	return e.repo.GetCanvas(ctx, ideaID)
}

// Generate derives the initial canvas from the idea's Analysis. It fails
// with a not-found error when there is no Analysis and returns an existing
// canvas unchanged.
func (e *Engine) Generate(ctx context.Context, ideaID string) (*repo.Canvas, error) {
	if c, err := e.repo.GetCanvas(ctx, ideaID); err == nil {
		return c, nil
	}
	a, err := e.repo.GetAnalysis(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	c := &repo.Canvas{
		IdeaID:       ideaID,
		Status:       repo.CanvasActive,
		Assumptions:  deriveAssumptions(a),
		PivotHistory: []repo.PivotRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := e.repo.CreateCanvas(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create canvas: %w", err)
	}
	if !created {
		// Another caller generated it first.
		return e.repo.GetCanvas(ctx, ideaID)
	}
	e.event(ideaID, "canvas_generated", "", "")
	return c, nil
}

// load returns an active canvas and the assumption of type t.
func (e *Engine) load(ctx context.Context, ideaID string, t repo.AssumptionType) (*repo.Canvas, *repo.Assumption, error) {
	c, err := e.repo.GetCanvas(ctx, ideaID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status == repo.CanvasKilled {
		return nil, nil, ErrCanvasKilled
	}
	a := c.Assumption(t)
	if a == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownAssumption, t)
	}
	return c, a, nil
}

// SuggestPivots asks the completion service for ranked alternative
// directions for one assumption and stores them for ApplyPivot.
func (e *Engine) SuggestPivots(ctx context.Context, ideaID string, t repo.AssumptionType) ([]repo.PivotSuggestion, error) {
	_, a, err := e.load(ctx, ideaID, t)
	if err != nil {
		return nil, err
	}
	if e.llm == nil {
		return nil, llm.ErrNotConfigured
	}
	idea, err := e.repo.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	var evidence []string
	for _, ev := range a.Evidence {
		line := "- " + ev.Note
		if ev.Metric != "" {
			line += fmt.Sprintf(" (%s = %g)", ev.Metric, ev.Value)
		}
		evidence = append(evidence, line)
	}
	rendered, err := prompt.LoadAndRender(prompt.PivotSuggestions, e.templatesDir, prompt.Vars{
		"idea_title":      idea.Title,
		"idea_summary":    idea.Summary,
		"assumption_type": string(t),
		"statement":       a.Statement,
		"evidence":        strings.Join(evidence, "\n"),
	})
	if err != nil {
		return nil, err
	}
	reply, err := e.llm.Stream(ctx, llm.Request{Prompt: rendered}, nil)
	if err != nil {
		return nil, fmt.Errorf("suggest pivots: %w", err)
	}
	suggestions, err := ParseSuggestions(reply)
	if err != nil {
		return nil, err
	}
	if err := e.repo.PutPivotSuggestions(ctx, ideaID, t, suggestions); err != nil {
		return nil, err
	}
	e.event(ideaID, "pivots_suggested", string(t), fmt.Sprintf("%d suggestions", len(suggestions)))
	return suggestions, nil
}

// ParseSuggestions extracts the ranked suggestion array from a reply.
// Entries without a title are dropped and the list is capped.
func ParseSuggestions(reply string) ([]repo.PivotSuggestion, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, errors.New("no suggestion list in reply")
	}
	var raw []repo.PivotSuggestion
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}
	var out []repo.PivotSuggestion
	for _, s := range raw {
		if strings.TrimSpace(s.Title) == "" {
			continue
		}
		if s.NewStatement == "" {
			s.NewStatement = s.Title
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("reply contained no usable suggestions")
	}
	return out, nil
}

// ApplyPivot adopts suggestion index of the stored list for assumption t:
// the statement is replaced, the assumption becomes pivoted and the choice is
// appended to the pivot history.
func (e *Engine) ApplyPivot(ctx context.Context, ideaID string, t repo.AssumptionType, index int) (*repo.Canvas, error) {
	c, a, err := e.load(ctx, ideaID, t)
	if err != nil {
		return nil, err
	}
	suggestions, err := e.repo.GetPivotSuggestions(ctx, ideaID, t)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if index < 0 || index >= len(suggestions) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPivotOutOfRange, index, len(suggestions))
	}
	chosen := suggestions[index]

	c.PivotHistory = append(c.PivotHistory, repo.PivotRecord{
		Type:          t,
		FromStatement: a.Statement,
		Chosen:        chosen,
		Index:         index,
		At:            e.now(),
	})
	a.Statement = chosen.NewStatement
	a.Status = repo.AssumptionPivoted
	a.TestingSince = nil

	if err := e.repo.PutCanvas(ctx, c); err != nil {
		return nil, err
	}
	e.event(ideaID, "pivot_applied", string(t), chosen.Title)
	return c, nil
}

// Kill marks the canvas killed. It is terminal.
func (e *Engine) Kill(ctx context.Context, ideaID, reason string) (*repo.Canvas, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New("kill reason is required")
	}
	c, err := e.repo.GetCanvas(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if c.Status == repo.CanvasKilled {
		return nil, ErrCanvasKilled
	}
	now := e.now()
	c.Status = repo.CanvasKilled
	c.KilledAt = &now
	c.KilledReason = reason
	if err := e.repo.PutCanvas(ctx, c); err != nil {
		return nil, err
	}
	e.event(ideaID, "canvas_killed", "", reason)
	return c, nil
}

// AddEvidence appends an observation to assumption t. An untested or
// pivoted assumption starts testing.
func (e *Engine) AddEvidence(ctx context.Context, ideaID string, t repo.AssumptionType, ev repo.Evidence) (*repo.Canvas, error) {
	c, a, err := e.load(ctx, ideaID, t)
	if err != nil {
		return nil, err
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	a.Evidence = append(a.Evidence, ev)
	e.startTesting(a, ev.At)
	if err := e.repo.PutCanvas(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) startTesting(a *repo.Assumption, at time.Time) {
	if a.Status == repo.AssumptionUntested || a.Status == repo.AssumptionPivoted {
		a.Status = repo.AssumptionTesting
		a.TestingSince = &at
	}
}
