package orchestrator

import (
	"context"
	"fmt"

	appctx "github.com/lucasnoah/ideaforge/internal/context"
	"github.com/lucasnoah/ideaforge/internal/review"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// draftState is the in-progress draft of one item, kept in session state so
// a paused review loop continues from the last draft instead of starting over.
type draftState struct {
	Draft   string   `json:"draft"`
	Round   int      `json:"round"`
	PrevAvg *float64 `json:"prev_avg,omitempty"`
}

func draftSession(id string) string { return "draft:" + id }

// generateReviewed produces a draft and runs it through the advisor panel,
// revising with the editor brief until the rubric approves or the revise
// bound is hit. Exhausting the bound fails the item with the last brief.
func (s *Scheduler) generateReviewed(ctx context.Context, subject, id, kind string, step stage.Step) stage.Outcome {
	persist := context.WithoutCancel(ctx)
	session := draftSession(id)

	var st draftState
	found, err := s.store.GetSession(persist, subject, session, &st)
	if err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}
	if !found {
		out := s.runner.Run(ctx, step)
		if out.Kind != stage.OutcomeCompleted {
			return out
		}
		st = draftState{Draft: out.Content}
		if err := s.store.PutSession(persist, subject, session, st); err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
	}

	done := func(out stage.Outcome) stage.Outcome {
		if out.Kind != stage.OutcomePaused {
			_ = s.store.DeleteSession(persist, subject, session)
		}
		return out
	}

	if s.reviewer == nil || !s.review.Enabled {
		return done(stage.Outcome{Kind: stage.OutcomeCompleted, Content: st.Draft})
	}

	for {
		if s.runner.ShouldPause(ctx) {
			return stage.Outcome{Kind: stage.OutcomePaused}
		}
		critiques, err := s.reviewer.Review(ctx, kind, st.Draft)
		if err != nil {
			return done(stage.Outcome{Kind: stage.OutcomeFailed, Err: fmt.Errorf("review: %w", err)})
		}
		d := review.Decide(critiques, s.review.MinScore, st.PrevAvg)
		s.event(subject, "review", id, fmt.Sprintf("round %d: %s (avg %.1f, %d high)", st.Round, d.Decision, d.AvgScore, d.HighIssueCount))
		s.logf("%s: %s review round %d: %s avg %.1f", subject, id, st.Round, d.Decision, d.AvgScore)

		if d.Decision == review.Approve {
			return done(stage.Outcome{Kind: stage.OutcomeCompleted, Content: st.Draft})
		}
		if st.Round >= s.review.MaxReviseRounds {
			return done(stage.Outcome{
				Kind: stage.OutcomeFailed,
				Err:  fmt.Errorf("still needs revision after %d round(s):\n%s", st.Round, d.Brief),
			})
		}

		revised := step
		revised.Vars = appctx.WithRevision(step.Vars, d.Brief, st.Draft)
		out := s.runner.Run(ctx, revised)
		switch out.Kind {
		case stage.OutcomePaused:
			return out
		case stage.OutcomeFailed:
			return done(out)
		}

		avg := d.AvgScore
		st = draftState{Draft: out.Content, Round: st.Round + 1, PrevAvg: &avg}
		if err := s.store.PutSession(persist, subject, session, st); err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
	}
}
