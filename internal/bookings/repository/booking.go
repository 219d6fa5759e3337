package repository

import (
	"context"
	mongotx "spacebook/pkg/db/mongo"
	"spacebook/pkg/model"
	"time"
)

const (
	CollectionName = "Bookings"
)

// Filter narrows list queries. Zero values match everything.
type Filter struct {
	UserID     string
	FacilityID string
	Statuses   []model.Status
	From       *time.Time
	To         *time.Time
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindAll(ctx context.Context, filter Filter, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// FindActiveByUser returns the user's pending or approved bookings that
	// end after now.
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*model.Booking, error)
	// FindOverlapping returns bookings on the facility intersecting
	// [start, end) whose status is one of statuses.
	FindOverlapping(ctx context.Context, facilityID string, start, end time.Time, statuses ...model.Status) ([]*model.Booking, error)
	FindByUserAndStatus(ctx context.Context, userID string, statuses ...model.Status) ([]*model.Booking, error)
	// FindByRange returns every booking, in any status, intersecting [start, end).
	FindByRange(ctx context.Context, start, end time.Time) ([]*model.Booking, error)
	// FindArrivalOverdue returns approved, unconfirmed bookings whose
	// arrival deadline is before now.
	FindArrivalOverdue(ctx context.Context, now time.Time) ([]*model.Booking, error)

	// Transition applies change only if the stored status is one of from.
	// On mismatch it returns the stored booking with ErrStatusMismatch.
	Transition(ctx context.Context, id string, from []model.Status, change model.StatusChange) (*model.Booking, error)
	// UpdateDetails overwrites the editable fields of a pending booking.
	UpdateDetails(ctx context.Context, booking *model.Booking) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func containsStatus(statuses []model.Status, s model.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func clone(b *model.Booking) *model.Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.Equipment != nil {
		eq := *b.Equipment
		eq.Items = append([]model.EquipmentItem(nil), b.Equipment.Items...)
		c.Equipment = &eq
	}
	if b.ArrivalDeadline != nil {
		d := *b.ArrivalDeadline
		c.ArrivalDeadline = &d
	}
	if b.ArrivalConfirmedAt != nil {
		d := *b.ArrivalConfirmedAt
		c.ArrivalConfirmedAt = &d
	}
	return &c
}
