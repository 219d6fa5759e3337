package repository

import (
	"context"
	"fmt"
	facilityerrors "spacebook/internal/facilities/errors"
	"spacebook/pkg/model"
	"sort"
	"strings"
	"sync"
)

type memoryFacilityRepository struct {
	mu         sync.RWMutex
	facilities map[string]*model.Facility
}

func NewMemoryFacilityRepository() FacilityRepository {
	return &memoryFacilityRepository{facilities: make(map[string]*model.Facility)}
}

func (r *memoryFacilityRepository) Create(_ context.Context, facility *model.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.facilities {
		if strings.EqualFold(f.Name, facility.Name) {
			return fmt.Errorf("%w: %s", facilityerrors.ErrDuplicateName, facility.Name)
		}
	}
	r.facilities[facility.ID] = clone(facility)
	return nil
}

func (r *memoryFacilityRepository) FindByID(_ context.Context, id string) (*model.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.facilities[id]
	if !ok {
		return nil, facilityerrors.ErrNotFound
	}
	return clone(f), nil
}

func (r *memoryFacilityRepository) FindByName(_ context.Context, name string) (*model.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.facilities {
		if strings.EqualFold(f.Name, name) {
			return clone(f), nil
		}
	}
	return nil, facilityerrors.ErrNotFound
}

func (r *memoryFacilityRepository) FindAll(_ context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error) {
	all := r.list(activeOnly)
	if offset >= int64(len(all)) {
		return []*model.Facility{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryFacilityRepository) Count(_ context.Context, activeOnly bool) (int64, error) {
	return int64(len(r.list(activeOnly))), nil
}

func (r *memoryFacilityRepository) Update(_ context.Context, facility *model.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.facilities[facility.ID]; !ok {
		return facilityerrors.ErrNotFound
	}
	for id, f := range r.facilities {
		if id != facility.ID && strings.EqualFold(f.Name, facility.Name) {
			return fmt.Errorf("%w: %s", facilityerrors.ErrDuplicateName, facility.Name)
		}
	}
	r.facilities[facility.ID] = clone(facility)
	return nil
}

func (r *memoryFacilityRepository) list(activeOnly bool) []*model.Facility {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Facility, 0, len(r.facilities))
	for _, f := range r.facilities {
		if activeOnly && !f.Active {
			continue
		}
		out = append(out, clone(f))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
