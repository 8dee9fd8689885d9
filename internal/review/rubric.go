package review

import (
	"fmt"
	"strings"
)

// Severity grades a single review issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Verdict is the editor's call on a draft.
type Verdict string

const (
	Approve Verdict = "approve"
	Revise  Verdict = "revise"
)

// Issue is one problem an advisor found in a draft.
type Issue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Critique is one advisor's evaluation of a draft.
type Critique struct {
	AdvisorID string  `json:"advisor_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Issues    []Issue `json:"issues"`
}

// Decision is the derived editor verdict for one review round.
type Decision struct {
	Decision       Verdict `json:"decision"`
	Brief          string  `json:"brief"`
	AvgScore       float64 `json:"avg_score"`
	HighIssueCount int     `json:"high_issue_count"`
}

// Decide turns a round of critiques into an approve/revise verdict.
//
// High-severity issues always force a revision. Without them, a round whose
// average dropped below previousAvgScore is approved so the revise loop
// terminates once quality stops improving. Otherwise the average is compared
// against minAggregateScore. Low-severity issues are ignored entirely.
func Decide(critiques []Critique, minAggregateScore float64, previousAvgScore *float64) Decision {
	if len(critiques) == 0 {
		return Decision{Decision: Approve}
	}

	var total float64
	for _, c := range critiques {
		total += c.Score
	}
	avg := total / float64(len(critiques))

	var high, medium []string
	for _, c := range critiques {
		for _, is := range c.Issues {
			switch is.Severity {
			case SeverityHigh:
				high = append(high, briefLine(is, c.Name))
			case SeverityMedium:
				medium = append(medium, briefLine(is, c.Name))
			}
		}
	}

	d := Decision{
		Brief:          strings.Join(append(high, medium...), "\n"),
		AvgScore:       avg,
		HighIssueCount: len(high),
	}

	switch {
	case len(high) > 0:
		d.Decision = Revise
	case previousAvgScore != nil && avg < *previousAvgScore:
		d.Decision = Approve
	case avg >= minAggregateScore:
		d.Decision = Approve
	default:
		d.Decision = Revise
	}
	return d
}

func briefLine(is Issue, advisor string) string {
	return fmt.Sprintf("[%s] (%s) %s", strings.ToUpper(string(is.Severity)), advisor, is.Description)
}
