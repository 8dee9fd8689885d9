package orchestrator

import (
	"context"
	"fmt"

	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// RunContent generates content pieces of a calendar in the order given. An
// empty list means every piece that is not complete yet. Every id is checked
// against the calendar before anything runs.
func (s *Scheduler) RunContent(ctx context.Context, calendarID string, pieceIDs []string) (*RunResult, error) {
	cal, err := s.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if len(pieceIDs) == 0 {
		for _, p := range cal.Pieces {
			if p.Status != repo.StatusComplete {
				pieceIDs = append(pieceIDs, p.ID)
			}
		}
	}

	seen := make(map[string]bool)
	var ids []string
	for _, id := range pieceIDs {
		if cal.Piece(id) == nil {
			return nil, fmt.Errorf("%w: piece %q is not in calendar %s", ErrUnknownItem, id, calendarID)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	subject := Subject(KindContent, calendarID)
	items := make([]item, 0, len(ids))
	for _, id := range ids {
		id := id
		items = append(items, item{
			id:   id,
			name: "write " + cal.Piece(id).Title,
			run: func(ctx context.Context) stage.Outcome {
				return s.generatePiece(ctx, subject, calendarID, id)
			},
			onPause: func(ctx context.Context) {
				_, _ = s.repo.UpdatePiece(ctx, calendarID, id, func(p *repo.Piece) { p.Status = repo.StatusPending })
			},
		})
	}
	return s.run(ctx, subject, KindContent, items)
}

func (s *Scheduler) generatePiece(ctx context.Context, subject, calendarID, pieceID string) stage.Outcome {
	persist := context.WithoutCancel(ctx)

	// Re-read: the calendar in the store is the source of truth.
	cal, err := s.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}
	piece := cal.Piece(pieceID)
	if piece == nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: fmt.Errorf("%w: piece %q", ErrUnknownItem, pieceID)}
	}
	built, err := s.builder.Piece(ctx, cal, piece)
	if err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}

	if _, err := s.repo.UpdatePiece(persist, calendarID, pieceID, func(p *repo.Piece) {
		p.Status = repo.StatusRunning
		p.Error = ""
	}); err != nil {
		return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
	}

	out := s.generateReviewed(ctx, subject, pieceID, "content piece ("+built.Vars["piece_type"]+")", stage.Step{
		Subject:        subject,
		ItemID:         pieceID,
		Template:       built.Template,
		Vars:           built.Vars,
		ExpectDocument: true,
	})

	switch out.Kind {
	case stage.OutcomeCompleted:
		if _, err := s.repo.SavePieceVersion(persist, calendarID, pieceID, out.Content); err != nil {
			return stage.Outcome{Kind: stage.OutcomeFailed, Err: err}
		}
	case stage.OutcomeFailed:
		msg := "generation failed"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		_, _ = s.repo.UpdatePiece(persist, calendarID, pieceID, func(p *repo.Piece) {
			p.Status = repo.StatusError
			p.Error = msg
		})
	}
	return out
}
