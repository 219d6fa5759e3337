package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	holdserrors "spacebook/internal/holds/errors"
	"spacebook/pkg/model"
)

type facilityHolds struct {
	mu    sync.Mutex
	holds map[string]*model.SlotHold
}

// memoryHoldStore serializes writes per facility. Expired holds are pruned
// whenever a facility is written.
type memoryHoldStore struct {
	mu         sync.Mutex
	facilities map[string]*facilityHolds
	index      map[string]string
}

func NewMemoryHoldStore() HoldStore {
	return &memoryHoldStore{
		facilities: make(map[string]*facilityHolds),
		index:      make(map[string]string),
	}
}

func (s *memoryHoldStore) facility(id string) *facilityHolds {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facilities[id]
	if !ok {
		f = &facilityHolds{holds: make(map[string]*model.SlotHold)}
		s.facilities[id] = f
	}
	return f
}

func (s *memoryHoldStore) lookup(id string) (*facilityHolds, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	facilityID, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.facilities[facilityID], true
}

func (s *memoryHoldStore) Acquire(_ context.Context, candidate *model.SlotHold, reuseID string, now time.Time) (*model.SlotHold, error) {
	f := s.facility(candidate.FacilityID)
	f.mu.Lock()
	defer f.mu.Unlock()

	s.prune(f, now)
	live := make([]*model.SlotHold, 0, len(f.holds))
	for _, h := range f.holds {
		live = append(live, h)
	}

	hold, blocking := resolveAcquire(live, candidate, reuseID)
	if blocking != nil {
		return clone(blocking), fmt.Errorf("%w: hold %s", holdserrors.ErrHoldConflict, blocking.ID)
	}

	f.holds[hold.ID] = hold
	s.mu.Lock()
	s.index[hold.ID] = hold.FacilityID
	s.mu.Unlock()
	return clone(hold), nil
}

func (s *memoryHoldStore) Get(_ context.Context, id string, now time.Time) (*model.SlotHold, error) {
	f, ok := s.lookup(id)
	if !ok {
		return nil, holdserrors.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.holds[id]
	if !ok || !h.Live(now) {
		return nil, holdserrors.ErrNotFound
	}
	return clone(h), nil
}

func (s *memoryHoldStore) Extend(_ context.Context, id, userID string, expiresAt, now time.Time) (*model.SlotHold, error) {
	f, ok := s.lookup(id)
	if !ok {
		return nil, holdserrors.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s.prune(f, now)
	h, ok := f.holds[id]
	if !ok {
		return nil, holdserrors.ErrNotFound
	}
	if h.UserID != userID {
		return nil, holdserrors.ErrNotOwner
	}
	h.ExpiresAt = expiresAt
	return clone(h), nil
}

func (s *memoryHoldStore) Delete(_ context.Context, id, userID string, now time.Time) error {
	f, ok := s.lookup(id)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s.prune(f, now)
	h, ok := f.holds[id]
	if !ok {
		return nil
	}
	if h.UserID != userID {
		return holdserrors.ErrNotOwner
	}
	delete(f.holds, id)
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return nil
}

func (s *memoryHoldStore) ListLive(_ context.Context, facilityID string, now time.Time) ([]*model.SlotHold, error) {
	f := s.facility(facilityID)
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*model.SlotHold, 0, len(f.holds))
	for _, h := range f.holds {
		if h.Live(now) {
			out = append(out, clone(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// prune must be called with f.mu held.
func (s *memoryHoldStore) prune(f *facilityHolds, now time.Time) {
	var expired []string
	for id, h := range f.holds {
		if !h.Live(now) {
			expired = append(expired, id)
			delete(f.holds, id)
		}
	}
	if len(expired) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range expired {
		delete(s.index, id)
	}
	s.mu.Unlock()
}
