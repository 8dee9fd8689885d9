package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lucasnoah/ideaforge/internal/kv"
)

// Acquire takes the run lease for subject. ok is false when another live
// worker holds it; that is not an error. A lease not renewed within the TTL
// is considered stale and taken over.
func (s *Store) Acquire(ctx context.Context, subject string) (owner string, ok bool, err error) {
	owner = uuid.NewString()
	now := s.now()
	data, err := json.Marshal(Lease{Owner: owner, AcquiredAt: now, RenewedAt: now})
	if err != nil {
		return "", false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		ok, err = s.kv.SetNX(ctx, leaseKey(subject), data)
		if err != nil {
			return "", false, fmt.Errorf("acquire lease %s: %w", subject, err)
		}
		if ok {
			return owner, true, nil
		}

		held, err := s.lease(ctx, subject)
		if errors.Is(err, kv.ErrNotFound) {
			continue // released between SetNX and Get
		}
		if err != nil {
			return "", false, err
		}
		if now.Sub(held.RenewedAt) < s.leaseTTL {
			return "", false, nil
		}
		// Stale. Only remove it if it is still the same holder.
		if cur, err := s.lease(ctx, subject); err == nil && cur.Owner == held.Owner {
			if err := s.kv.Delete(ctx, leaseKey(subject)); err != nil {
				return "", false, fmt.Errorf("clear stale lease %s: %w", subject, err)
			}
		}
	}
	return "", false, nil
}

// Renew extends a lease held by owner.
func (s *Store) Renew(ctx context.Context, subject, owner string) error {
	held, err := s.lease(ctx, subject)
	if err != nil {
		return err
	}
	if held.Owner != owner {
		return fmt.Errorf("lease %s held by another worker", subject)
	}
	held.RenewedAt = s.now()
	return kv.PutJSON(ctx, s.kv, leaseKey(subject), held)
}

// Release drops the lease if owner still holds it.
func (s *Store) Release(ctx context.Context, subject, owner string) error {
	held, err := s.lease(ctx, subject)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if held.Owner != owner {
		return nil
	}
	return s.kv.Delete(ctx, leaseKey(subject))
}

// Leased reports whether a live lease exists for subject.
func (s *Store) Leased(ctx context.Context, subject string) (bool, error) {
	held, err := s.lease(ctx, subject)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.now().Sub(held.RenewedAt) < s.leaseTTL, nil
}

func (s *Store) lease(ctx context.Context, subject string) (*Lease, error) {
	l, err := kv.GetJSON[Lease](ctx, s.kv, leaseKey(subject))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("lease %s: %w", subject, kv.ErrNotFound)
		}
		return nil, err
	}
	return l, nil
}
