package repo

import "time"

// AssumptionType is one of the five fixed hypothesis categories.
type AssumptionType string

const (
	Demand           AssumptionType = "demand"
	Reachability     AssumptionType = "reachability"
	Engagement       AssumptionType = "engagement"
	WillingnessToPay AssumptionType = "willingness-to-pay"
	Differentiation  AssumptionType = "differentiation"
)

// AssumptionTypes lists every type in canvas order.
var AssumptionTypes = []AssumptionType{Demand, Reachability, Engagement, WillingnessToPay, Differentiation}

// AssumptionStatus tracks how far an assumption has been tested.
type AssumptionStatus string

const (
	AssumptionUntested    AssumptionStatus = "untested"
	AssumptionTesting     AssumptionStatus = "testing"
	AssumptionValidated   AssumptionStatus = "validated"
	AssumptionInvalidated AssumptionStatus = "invalidated"
	AssumptionPivoted     AssumptionStatus = "pivoted"
)

// CanvasStatus is active until an operator kills the idea.
type CanvasStatus string

const (
	CanvasActive CanvasStatus = "active"
	CanvasKilled CanvasStatus = "killed"
)

// Threshold holds the textual criteria plus the numeric rule automatic
// evaluation uses: Metric at or above ValidateAt validates, below
// InvalidateBelow invalidates, once WindowDays of testing have passed.
type Threshold struct {
	Validated       string  `json:"validated"`
	Invalidated     string  `json:"invalidated"`
	WindowDays      int     `json:"window_days"`
	Metric          string  `json:"metric,omitempty"`
	ValidateAt      float64 `json:"validate_at,omitempty"`
	InvalidateBelow float64 `json:"invalidate_below,omitempty"`
}

// Evidence is one observation recorded against an assumption.
type Evidence struct {
	At     time.Time `json:"at"`
	Note   string    `json:"note"`
	Metric string    `json:"metric,omitempty"`
	Value  float64   `json:"value,omitempty"`
}

type Assumption struct {
	Type         AssumptionType   `json:"type"`
	Status       AssumptionStatus `json:"status"`
	Statement    string           `json:"statement"`
	Evidence     []Evidence       `json:"evidence"`
	Threshold    Threshold        `json:"threshold"`
	LinkedStage  string           `json:"linked_stage"`
	TestingSince *time.Time       `json:"testing_since,omitempty"`
}

// PivotSuggestion is one ranked alternative direction for an assumption.
type PivotSuggestion struct {
	Title        string `json:"title"`
	Rationale    string `json:"rationale"`
	NewStatement string `json:"new_statement"`
}

// PivotRecord logs an applied pivot.
type PivotRecord struct {
	Type          AssumptionType  `json:"type"`
	FromStatement string          `json:"from_statement"`
	Chosen        PivotSuggestion `json:"chosen"`
	Index         int             `json:"index"`
	At            time.Time       `json:"at"`
}

// Canvas is the validation canvas for one idea.
type Canvas struct {
	IdeaID       string        `json:"idea_id"`
	Status       CanvasStatus  `json:"status"`
	KilledAt     *time.Time    `json:"killed_at,omitempty"`
	KilledReason string        `json:"killed_reason,omitempty"`
	Assumptions  []Assumption  `json:"assumptions"`
	PivotHistory []PivotRecord `json:"pivot_history"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Assumption returns the assumption of type t, or nil.
func (c *Canvas) Assumption(t AssumptionType) *Assumption {
	for i := range c.Assumptions {
		if c.Assumptions[i].Type == t {
			return &c.Assumptions[i]
		}
	}
	return nil
}
