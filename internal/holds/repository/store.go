package repository

import (
	"context"
	"time"

	"spacebook/pkg/model"
)

// HoldStore keeps slot holds with lazy expiry: every read ignores holds
// whose ExpiresAt is not after now.
type HoldStore interface {
	// Acquire is a single check-and-insert per facility. A live overlapping
	// hold of another user is returned with ErrHoldConflict. Otherwise the
	// caller's hold with reuseID, or the caller's overlapping hold, takes the
	// candidate's window and expiry; failing both the candidate is inserted.
	Acquire(ctx context.Context, candidate *model.SlotHold, reuseID string, now time.Time) (*model.SlotHold, error)
	Get(ctx context.Context, id string, now time.Time) (*model.SlotHold, error)
	// Extend moves the expiry of a live hold owned by userID.
	Extend(ctx context.Context, id, userID string, expiresAt, now time.Time) (*model.SlotHold, error)
	// Delete removes a hold owned by userID. Missing or expired holds are
	// not an error.
	Delete(ctx context.Context, id, userID string, now time.Time) error
	ListLive(ctx context.Context, facilityID string, now time.Time) ([]*model.SlotHold, error)
}

// resolveAcquire is the decision shared by every store, applied to the live
// holds of one facility. It returns the hold to write, or the blocking hold
// together with ErrHoldConflict.
func resolveAcquire(live []*model.SlotHold, candidate *model.SlotHold, reuseID string) (*model.SlotHold, *model.SlotHold) {
	var blocking, own, reused *model.SlotHold
	for _, h := range live {
		if !h.Overlaps(candidate.Start, candidate.End) {
			if h.ID == reuseID && h.UserID == candidate.UserID {
				reused = h
			}
			continue
		}
		if h.UserID != candidate.UserID {
			// report the hold that frees up last
			if blocking == nil || h.ExpiresAt.After(blocking.ExpiresAt) {
				blocking = h
			}
			continue
		}
		if h.ID == reuseID {
			reused = h
		} else if own == nil {
			own = h
		}
	}
	if blocking != nil {
		return nil, blocking
	}

	target := reused
	if target == nil {
		target = own
	}
	if target == nil {
		return clone(candidate), nil
	}
	updated := clone(target)
	updated.Start = candidate.Start
	updated.End = candidate.End
	updated.ExpiresAt = candidate.ExpiresAt
	return updated, nil
}

func clone(h *model.SlotHold) *model.SlotHold {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}
