package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	appctx "github.com/lucasnoah/ideaforge/internal/context"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// ResearchSteps are run in this order; each sees the findings of the ones
// before it. The last step yields the idea's Analysis.
var ResearchSteps = []string{"market", "competitors", "audience", "synthesis"}

const synthesisStep = "synthesis"

// ErrBadAnalysis is returned when the synthesis reply is not a usable
// analysis object.
var ErrBadAnalysis = errors.New("synthesis reply is not a valid analysis")

func findingSession(step string) string { return "finding:" + step }

// RunResearch runs the research steps for an idea and stores the resulting
// Analysis. Findings are kept in session state so a paused run resumes with
// them. Synthesis fails without calling the model while any earlier step
// has no finding; resuming retries the failed steps first.
func (s *Scheduler) RunResearch(ctx context.Context, ideaID string) (*RunResult, error) {
	if _, err := s.repo.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	subject := Subject(KindResearch, ideaID)

	items := make([]item, 0, len(ResearchSteps))
	for i, step := range ResearchSteps {
		step, earlier := step, ResearchSteps[:i]
		items = append(items, item{
			id:   step,
			name: "research " + step,
			run: func(ctx context.Context) stage.Outcome {
				return s.researchStep(ctx, subject, ideaID, step, earlier)
			},
		})
	}
	return s.run(ctx, subject, KindResearch, items)
}

func (s *Scheduler) researchStep(ctx context.Context, subject, ideaID, step string, earlier []string) stage.Outcome {
	persist := context.WithoutCancel(ctx)

	var (
		findings []appctx.Finding
		missing  []string
	)
	for _, e := range earlier {
		var f appctx.Finding
		ok, err := s.store.GetSession(persist, subject, findingSession(e), &f)
		if err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
		if ok {
			findings = append(findings, f)
		} else {
			missing = append(missing, e)
		}
	}
	// The analysis is only stored from a complete set of findings.
	if step == synthesisStep && len(missing) > 0 {
		return stage.Outcome{Kind: stage.OutcomeFailed,
			Err: fmt.Errorf("prerequisite not complete: %s", strings.Join(missing, ", "))}
	}

	built, err := s.builder.Research(ctx, ideaID, step, findings)
	if err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}
	out := s.runner.Run(ctx, stage.Step{
		Subject:  subject,
		ItemID:   step,
		Template: built.Template,
		Vars:     built.Vars,
	})
	if out.Kind != stage.OutcomeCompleted {
		return out
	}

	if step == synthesisStep {
		a, err := ParseAnalysis(out.Content)
		if err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
		a.IdeaID = ideaID
		if err := s.repo.PutAnalysis(persist, *a); err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
		return out
	}

	if err := s.store.PutSession(persist, subject, findingSession(step), appctx.Finding{Step: step, Text: out.Content}); err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}
	return out
}

// ParseAnalysis extracts the JSON analysis object from a synthesis reply,
// tolerating prose or code fences around it.
func ParseAnalysis(reply string) (*repo.Analysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, ErrBadAnalysis
	}
	var a repo.Analysis
	if err := json.Unmarshal([]byte(reply[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAnalysis, err)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is empty", ErrBadAnalysis)
	}
	return &a, nil
}
