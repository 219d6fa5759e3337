package repository

import (
	"context"
	"fmt"
	bookingserrors "spacebook/internal/bookings/errors"
	mongotx "spacebook/pkg/db/mongo"
	"spacebook/pkg/model"
	"sort"
	"sync"
	"time"
)

// memoryBookingRepository keeps bookings in process. Every write is a
// single critical section, which gives the conditional transitions the
// same atomicity as the Mongo implementation.
type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	tx       mongotx.TransactionManager
}

func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[string]*model.Booking),
		tx:       mongotx.NewNoopTransactionManager(),
	}
}

func (r *memoryBookingRepository) Create(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("%w: %s", bookingserrors.ErrDuplicateID, booking.ID)
	}
	r.bookings[booking.ID] = clone(booking)
	return nil
}

func (r *memoryBookingRepository) FindByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return clone(b), nil
}

func (r *memoryBookingRepository) FindAll(_ context.Context, filter Filter, limit int, offset int64) ([]*model.Booking, error) {
	matched := r.collect(filter.match)
	if offset >= int64(len(matched)) {
		return []*model.Booking{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memoryBookingRepository) Count(_ context.Context, filter Filter) (int64, error) {
	return int64(len(r.collect(filter.match))), nil
}

func (r *memoryBookingRepository) FindActiveByUser(_ context.Context, userID string, now time.Time) ([]*model.Booking, error) {
	return r.collect(func(b *model.Booking) bool {
		return b.UserID == userID && b.ActiveAt(now)
	}), nil
}

func (r *memoryBookingRepository) FindOverlapping(_ context.Context, facilityID string, start, end time.Time, statuses ...model.Status) ([]*model.Booking, error) {
	return r.collect(func(b *model.Booking) bool {
		return b.FacilityID == facilityID && containsStatus(statuses, b.Status) && b.Overlaps(start, end)
	}), nil
}

func (r *memoryBookingRepository) FindByUserAndStatus(_ context.Context, userID string, statuses ...model.Status) ([]*model.Booking, error) {
	return r.collect(func(b *model.Booking) bool {
		return b.UserID == userID && containsStatus(statuses, b.Status)
	}), nil
}

func (r *memoryBookingRepository) FindByRange(_ context.Context, start, end time.Time) ([]*model.Booking, error) {
	return r.collect(func(b *model.Booking) bool {
		return b.Overlaps(start, end)
	}), nil
}

func (r *memoryBookingRepository) FindArrivalOverdue(_ context.Context, now time.Time) ([]*model.Booking, error) {
	return r.collect(func(b *model.Booking) bool {
		return b.Status == model.StatusApproved &&
			!b.ArrivalConfirmed &&
			b.ArrivalDeadline != nil &&
			b.ArrivalDeadline.Before(now)
	}), nil
}

func (r *memoryBookingRepository) Transition(_ context.Context, id string, from []model.Status, change model.StatusChange) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if !containsStatus(from, b.Status) {
		return clone(b), bookingserrors.ErrStatusMismatch
	}
	change.Apply(b)
	return clone(b), nil
}

func (r *memoryBookingRepository) UpdateDetails(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[booking.ID]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if b.Status != model.StatusPending {
		return bookingserrors.ErrStatusMismatch
	}
	b.Purpose = booking.Purpose
	b.Start = booking.Start
	b.End = booking.End
	b.Participants = booking.Participants
	b.Equipment = clone(booking).Equipment
	b.UpdatedAt = booking.UpdatedAt
	return nil
}

func (r *memoryBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.tx.ExecuteTransaction(ctx, fn)
}

func (r *memoryBookingRepository) collect(match func(*model.Booking) bool) []*model.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (f Filter) match(b *model.Booking) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.FacilityID != "" && b.FacilityID != f.FacilityID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.Status) {
		return false
	}
	if f.From != nil && !b.End.After(*f.From) {
		return false
	}
	if f.To != nil && !b.Start.Before(*f.To) {
		return false
	}
	return true
}
