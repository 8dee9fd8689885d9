package pipeline

import "time"

// Status is the lifecycle status of a pipeline run.
type Status string

const (
	StatusNotStarted Status = "not_started" // reported by Poll only, never stored
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Step is one entry in a run's ordered step log.
type Step struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Progress is the persisted record of one orchestrated run, keyed by subject
// (e.g. "foundation:<idea id>").
type Progress struct {
	Subject      string    `json:"subject"`
	Kind         string    `json:"kind"`
	RunID        string    `json:"run_id"`
	Status       Status    `json:"status"`
	CurrentStep  string    `json:"current_step,omitempty"`
	Steps        []Step    `json:"steps"`
	Error        string    `json:"error,omitempty"`
	CompletedIDs []string  `json:"completed_ids"`
	Planned      []string  `json:"planned"`
	Invocations  int       `json:"invocations"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsCompleted reports whether id finished in this run.
func (p *Progress) IsCompleted(id string) bool {
	for _, c := range p.CompletedIDs {
		if c == id {
			return true
		}
	}
	return false
}

// MarkCompleted adds id to CompletedIDs once.
func (p *Progress) MarkCompleted(id string) {
	if !p.IsCompleted(id) {
		p.CompletedIDs = append(p.CompletedIDs, id)
	}
}

// SetStep records the status of the step for id, appending it if new, and
// makes it the current step.
func (p *Progress) SetStep(id, name string, status Status, detail string) {
	p.CurrentStep = name
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			p.Steps[i].Name = name
			p.Steps[i].Status = status
			p.Steps[i].Detail = detail
			return
		}
	}
	p.Steps = append(p.Steps, Step{ID: id, Name: name, Status: status, Detail: detail})
}

// Step returns the step for id, or nil.
func (p *Progress) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Done reports whether every planned item is completed or has failed.
func (p *Progress) Done() bool {
	for _, id := range p.Planned {
		if p.IsCompleted(id) {
			continue
		}
		if s := p.Step(id); s != nil && s.Status == StatusError {
			continue
		}
		return false
	}
	return true
}

// Failed returns the planned ids whose step ended in error.
func (p *Progress) Failed() []string {
	var out []string
	for _, id := range p.Planned {
		if s := p.Step(id); s != nil && s.Status == StatusError && !p.IsCompleted(id) {
			out = append(out, id)
		}
	}
	return out
}

// Lease is the single-worker guard for a subject.
type Lease struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	RenewedAt  time.Time `json:"renewed_at"`
}
