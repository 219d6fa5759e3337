package repository

import (
	"context"
	"spacebook/pkg/model"
)

const (
	CollectionName = "Facilities"
)

type FacilityRepository interface {
	Create(ctx context.Context, facility *model.Facility) error
	FindByID(ctx context.Context, id string) (*model.Facility, error)
	FindByName(ctx context.Context, name string) (*model.Facility, error)
	// FindAll lists facilities ordered by name. A zero limit returns all.
	FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
	Update(ctx context.Context, facility *model.Facility) error
}

func clone(f *model.Facility) *model.Facility {
	if f == nil {
		return nil
	}
	c := *f
	c.AllowedRoles = append([]model.Role(nil), f.AllowedRoles...)
	c.Unavailable = append([]model.DateRange(nil), f.Unavailable...)
	return &c
}
