package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// RunFoundation generates the requested foundation documents for an idea in
// dependency order. An empty kinds list means every kind. A kind whose
// prerequisites have no complete version is marked error and the run moves
// on; its dependents then fail the same way.
func (s *Scheduler) RunFoundation(ctx context.Context, ideaID string, kinds []foundation.Kind) (*RunResult, error) {
	if _, err := s.repo.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = foundation.All
	}
	for _, k := range kinds {
		if _, err := foundation.Parse(string(k)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnknownItem, err)
		}
	}

	subject := Subject(KindFoundation, ideaID)
	var items []item
	for _, k := range foundation.Order(kinds) {
		k := k
		items = append(items, item{
			id:   string(k),
			name: "generate " + string(k),
			run: func(ctx context.Context) stage.Outcome {
				return s.generateDocument(ctx, subject, ideaID, k)
			},
			onPause: func(ctx context.Context) {
				_ = s.repo.SetDocumentStatus(ctx, ideaID, k, repo.StatusPending, "")
			},
		})
	}
	return s.run(ctx, subject, KindFoundation, items)
}

func (s *Scheduler) generateDocument(ctx context.Context, subject, ideaID string, k foundation.Kind) stage.Outcome {
	persist := context.WithoutCancel(ctx)

	built, err := s.builder.Foundation(ctx, ideaID, k)
	if err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}
	if len(built.Missing) > 0 {
		missing := make([]string, len(built.Missing))
		for i, m := range built.Missing {
			missing[i] = string(m)
		}
		err := fmt.Errorf("prerequisite not complete: %s", strings.Join(missing, ", "))
		_ = s.repo.SetDocumentStatus(persist, ideaID, k, repo.StatusError, err.Error())
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}

	if err := s.repo.SetDocumentStatus(persist, ideaID, k, repo.StatusRunning, ""); err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}

	out := s.generateReviewed(ctx, subject, string(k), string(k), stage.Step{
		Subject:        subject,
		ItemID:         string(k),
		Template:       built.Template,
		Vars:           built.Vars,
		ExpectDocument: true,
	})

	switch out.Kind {
	case stage.OutcomeCompleted:
		d, err := s.repo.SaveDocumentVersion(persist, ideaID, k, out.Content)
		if err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
		s.logf("%s: %s saved as v%d", subject, k, d.Version)
	case stage.OutcomeFailed:
		msg := "generation failed"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		_ = s.repo.SetDocumentStatus(persist, ideaID, k, repo.StatusError, msg)
	}
	return out
}

func parseKinds(names []string) ([]foundation.Kind, error) {
	kinds, err := foundation.ParseList(names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownItem, err)
	}
	return kinds, nil
}
