package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

// defaultThresholds holds the numeric rule and linked pipeline stage for
// each assumption type.
var defaultThresholds = map[repo.AssumptionType]struct {
	threshold repo.Threshold
	stage     string
}{
	repo.Demand: {repo.Threshold{
		Validated:   "100+ waitlist signups within 14 days",
		Invalidated: "fewer than 20 signups after 14 days",
		WindowDays:  14, Metric: "signups", ValidateAt: 100, InvalidateBelow: 20,
	}, "research"},
	repo.Reachability: {repo.Threshold{
		Validated:   "click-through rate of 2% or more on target channels",
		Invalidated: "click-through rate under 0.5%",
		WindowDays:  14, Metric: "ctr", ValidateAt: 2.0, InvalidateBelow: 0.5,
	}, "seo-strategy"},
	repo.Engagement: {repo.Threshold{
		Validated:   "25% of visitors return within three weeks",
		Invalidated: "under 10% return",
		WindowDays:  21, Metric: "return_rate", ValidateAt: 25, InvalidateBelow: 10,
	}, "content"},
	repo.WillingnessToPay: {repo.Threshold{
		Validated:   "10+ paid preorders within 30 days",
		Invalidated: "fewer than 2 preorders after 30 days",
		WindowDays:  30, Metric: "preorders", ValidateAt: 10, InvalidateBelow: 2,
	}, "pricing"},
	repo.Differentiation: {repo.Threshold{
		Validated:   "60% of surveyed prospects prefer it over the main alternative",
		Invalidated: "under 40% preference",
		WindowDays:  21, Metric: "preference_pct", ValidateAt: 60, InvalidateBelow: 40,
	}, "positioning"},
}

func deriveAssumptions(a *repo.Analysis) []repo.Assumption {
	audience := a.Audience
	if audience == "" {
		audience = "the target audience"
	}
	statements := map[repo.AssumptionType]string{
		repo.Demand:           fmt.Sprintf("%s have a problem painful enough to seek out: %s", audience, firstSentence(a.Summary)),
		repo.Reachability:     fmt.Sprintf("We can reach %s affordably through %s.", audience, orDefault(a.Channels, "organic search and communities")),
		repo.Engagement:       fmt.Sprintf("%s will come back to the product after their first visit.", audience),
		repo.WillingnessToPay: fmt.Sprintf("%s will pay at %s.", audience, orDefault(a.PricePoints, "a price that sustains the business")),
		repo.Differentiation:  fmt.Sprintf("The product stands apart from %s because of %s.", orDefault(a.Competitors, "existing alternatives"), orDefault(a.Differentiators, "a clearer focus")),
	}

	out := make([]repo.Assumption, 0, len(repo.AssumptionTypes))
	for _, t := range repo.AssumptionTypes {
		d := defaultThresholds[t]
		out = append(out, repo.Assumption{
			Type:        t,
			Status:      repo.AssumptionUntested,
			Statement:   statements[t],
			Evidence:    []repo.Evidence{},
			Threshold:   d.threshold,
			LinkedStage: d.stage,
		})
	}
	return out
}

// Change reports one status transition made by Evaluate.
type Change struct {
	Type repo.AssumptionType   `json:"type"`
	From repo.AssumptionStatus `json:"from"`
	To   repo.AssumptionStatus `json:"to"`
}

// Evaluate records observed metrics as evidence against every open
// assumption that tracks them and applies the threshold rule once the
// assumption's test window has elapsed. Validated and invalidated
// assumptions are left alone.
func (e *Engine) Evaluate(ctx context.Context, ideaID string, metrics map[string]float64) ([]Change, error) {
	c, err := e.repo.GetCanvas(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if c.Status == repo.CanvasKilled {
		return nil, ErrCanvasKilled
	}

	now := e.now()
	var changes []Change
	for i := range c.Assumptions {
		a := &c.Assumptions[i]
		switch a.Status {
		case repo.AssumptionValidated, repo.AssumptionInvalidated:
			continue
		}
		v, ok := metrics[a.Threshold.Metric]
		if !ok || a.Threshold.Metric == "" {
			continue
		}
		from := a.Status
		a.Evidence = append(a.Evidence, repo.Evidence{At: now, Note: "metric observed", Metric: a.Threshold.Metric, Value: v})
		e.startTesting(a, now)

		if next := decide(a, v, now); next != "" {
			a.Status = next
		}
		if a.Status != from {
			changes = append(changes, Change{Type: a.Type, From: from, To: a.Status})
		}
	}

	if err := e.repo.PutCanvas(ctx, c); err != nil {
		return nil, err
	}
	for _, ch := range changes {
		e.event(ideaID, "assumption_"+string(ch.To), string(ch.Type), string(ch.From))
	}
	return changes, nil
}

// decide applies the threshold rule to a testing assumption. It returns ""
// while the window is open or the value sits between the two bounds.
func decide(a *repo.Assumption, v float64, now time.Time) repo.AssumptionStatus {
	if a.Status != repo.AssumptionTesting || a.TestingSince == nil {
		return ""
	}
	window := time.Duration(a.Threshold.WindowDays) * 24 * time.Hour
	if now.Sub(*a.TestingSince) < window {
		return ""
	}
	switch {
	case v >= a.Threshold.ValidateAt:
		return repo.AssumptionValidated
	case v < a.Threshold.InvalidateBelow:
		return repo.AssumptionInvalidated
	}
	return ""
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		s = s[:i+1]
	}
	return s
}

func orDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}
