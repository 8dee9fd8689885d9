package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/ideaforge/internal/kv"
)

// DefaultLeaseTTL is how long a run lease is honoured without renewal.
const DefaultLeaseTTL = 30 * time.Minute

// Store manages pipeline progress records in the key-value store.
type Store struct {
	kv       kv.Store
	now      func() time.Time
	leaseTTL time.Duration
	mu       sync.Mutex
}

// NewStore creates a Store over s.
func NewStore(s kv.Store) *Store {
	return &Store{
		kv:       s,
		now:      func() time.Time { return time.Now().UTC() },
		leaseTTL: DefaultLeaseTTL,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetLeaseTTL overrides DefaultLeaseTTL.
func (s *Store) SetLeaseTTL(d time.Duration) {
	if d > 0 {
		s.leaseTTL = d
	}
}

func progressKey(subject string) string { return "progress:" + subject }
func leaseKey(subject string) string    { return "lease:" + subject }
func sessionPrefix(subject string) string {
	return "session:" + subject + ":"
}

// Get reads the progress record for subject.
func (s *Store) Get(ctx context.Context, subject string) (*Progress, error) {
	p, err := kv.GetJSON[Progress](ctx, s.kv, progressKey(subject))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("pipeline %s: %w", subject, kv.ErrNotFound)
		}
		return nil, fmt.Errorf("get pipeline %s: %w", subject, err)
	}
	return p, nil
}

// Poll returns the best-known state for subject. An absent record is
// reported as not_started rather than an error.
func (s *Store) Poll(ctx context.Context, subject string) (*Progress, error) {
	p, err := s.Get(ctx, subject)
	if errors.Is(err, kv.ErrNotFound) {
		return &Progress{Subject: subject, Status: StatusNotStarted, Steps: []Step{}, CompletedIDs: []string{}}, nil
	}
	return p, err
}

// Begin loads the record for subject and marks it running, or initialises a
// new one. Items in planned that an existing record lacks are appended, so a
// resumed run keeps its CompletedIDs and gains any newly requested items.
func (s *Store) Begin(ctx context.Context, subject, kind string, planned []string) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p, err := s.Get(ctx, subject)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		p = &Progress{
			Subject:      subject,
			Kind:         kind,
			RunID:        uuid.NewString(),
			Steps:        []Step{},
			CompletedIDs: []string{},
			StartedAt:    now,
		}
	case err != nil:
		return nil, err
	}

	for _, id := range planned {
		if !contains(p.Planned, id) {
			p.Planned = append(p.Planned, id)
		}
	}
	p.Status = StatusRunning
	p.Error = ""
	p.Invocations++
	p.UpdatedAt = now

	if err := kv.PutJSON(ctx, s.kv, progressKey(subject), p); err != nil {
		return nil, fmt.Errorf("write pipeline %s: %w", subject, err)
	}
	return p, nil
}

// Update performs a read-modify-write of the progress record. Ids removed
// from CompletedIDs by fn are restored.
func (s *Store) Update(ctx context.Context, subject string, fn func(*Progress)) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	before := append([]string(nil), p.CompletedIDs...)
	fn(p)
	for _, id := range before {
		p.MarkCompleted(id)
	}
	p.UpdatedAt = s.now()
	if err := kv.PutJSON(ctx, s.kv, progressKey(subject), p); err != nil {
		return nil, fmt.Errorf("write pipeline %s: %w", subject, err)
	}
	return p, nil
}

// Reset clears the progress record, the run lease and any session state for
// subject so the next Begin starts a fresh run.
func (s *Store) Reset(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.List(ctx, sessionPrefix(subject))
	if err != nil {
		return fmt.Errorf("list session keys: %w", err)
	}
	keys = append(keys, progressKey(subject), leaseKey(subject))
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// List returns all progress records, optionally filtered by status, sorted by
// subject. Pass "" to return every record.
func (s *Store) List(ctx context.Context, status Status) ([]Progress, error) {
	keys, err := s.kv.List(ctx, "progress:")
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	var out []Progress
	for _, k := range keys {
		p, err := kv.GetJSON[Progress](ctx, s.kv, k)
		if err != nil {
			continue // skip broken entries
		}
		if status == "" || p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// PutSession stores partial run state (e.g. intermediate research findings)
// under subject. It is cleared by Reset.
func (s *Store) PutSession(ctx context.Context, subject, name string, v interface{}) error {
	return kv.PutJSON(ctx, s.kv, sessionPrefix(subject)+name, v)
}

// GetSession decodes session state into out and reports whether it existed.
func (s *Store) GetSession(ctx context.Context, subject, name string, out interface{}) (bool, error) {
	data, err := s.kv.Get(ctx, sessionPrefix(subject)+name)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get session %s/%s: %w", subject, name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode session %s/%s: %w", subject, name, err)
	}
	return true, nil
}

// DeleteSession removes one session entry.
func (s *Store) DeleteSession(ctx context.Context, subject, name string) error {
	return s.kv.Delete(ctx, sessionPrefix(subject)+name)
}

// SessionNames lists the session entries stored for subject.
func (s *Store) SessionNames(ctx context.Context, subject string) ([]string, error) {
	keys, err := s.kv.List(ctx, sessionPrefix(subject))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, sessionPrefix(subject))
	}
	return names, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
