// Package publish picks finished content pieces and commits them to the
// publishing repository exactly once.
package publish

import (
	"context"
	"sort"

	"github.com/lucasnoah/ideaforge/internal/repo"
)

// Candidate is a piece ready to publish.
type Candidate struct {
	Calendar repo.Calendar
	Piece    repo.Piece
}

// Selector chooses the next piece to publish.
type Selector struct {
	repo *repo.Repo
}

func NewSelector(r *repo.Repo) *Selector {
	return &Selector{repo: r}
}

// Next returns the first complete, unpublished piece ordered by calendar
// priority, then piece priority (lowest first), then calendar and piece
// insertion order. It returns nil when nothing qualifies.
func (s *Selector) Next(ctx context.Context) (*Candidate, error) {
	all, err := s.Pending(ctx)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}

// Pending returns every publishable piece in selection order.
func (s *Selector) Pending(ctx context.Context) ([]Candidate, error) {
	cals, err := s.repo.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListPublishRecords(ctx)
	if err != nil {
		return nil, err
	}
	published := make(map[string]bool, len(recs))
	for _, r := range recs {
		published[r.PieceID] = true
	}

	// Calendars and pieces are collected in insertion order; the stable sort
	// keeps it for ties.
	var out []Candidate
	for _, c := range cals {
		for _, p := range c.Pieces {
			if p.Status != repo.StatusComplete || published[p.ID] {
				continue
			}
			out = append(out, Candidate{Calendar: c, Piece: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Calendar.Priority != b.Calendar.Priority {
			return a.Calendar.Priority < b.Calendar.Priority
		}
		return a.Piece.Priority < b.Piece.Priority
	})
	return out, nil
}
