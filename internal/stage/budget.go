package stage

import "time"

// Budget tracks the wall-clock ceiling imposed on one invocation. The runner
// pauses cooperatively once less than the reserve is left, so the step in
// flight can always finish before the ceiling is hit.
type Budget struct {
	limit   time.Duration
	reserve time.Duration
	start   time.Time
	now     func() time.Time
}

// NewBudget starts a budget now. A zero limit never pauses.
func NewBudget(limit, reserve time.Duration) *Budget {
	b := &Budget{limit: limit, reserve: reserve, now: time.Now}
	b.start = b.now()
	return b
}

// SetClock replaces the time source and restarts the budget from it.
func (b *Budget) SetClock(now func() time.Time) {
	b.now = now
	b.start = now()
}

// Remaining returns the time left before the ceiling.
func (b *Budget) Remaining() time.Duration {
	if b == nil || b.limit <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return b.limit - b.now().Sub(b.start)
}

// ShouldPause reports whether the next step should not be started.
func (b *Budget) ShouldPause() bool {
	if b == nil || b.limit <= 0 {
		return false
	}
	return b.Remaining() < b.reserve
}
