// Package lifecycle owns every status change of a stored booking:
// approval with its cascade, denial, cancellation, arrival check-in and
// the arrival-timeout sweep.
//
//	pending  -> approved | denied | cancelled
//	approved -> cancelled
//
// denied and cancelled are terminal. Every write is a conditional
// transition on the current status, so concurrent callers cannot move a
// booking out of a terminal state or approve it twice.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/bookings/repository"
	"spacebook/internal/notify"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/lock"
	"spacebook/pkg/model"
)

const (
	MessageSlotTaken            = "Slot was taken by another approved booking"
	MessageOtherBookingApproved = "Another booking of yours was approved"
	MessageArrivalTimeout       = "Automatically cancelled: arrival was not confirmed within the grace period"
)

// NoticeSink receives notices for asynchronous delivery.
type NoticeSink interface {
	Dispatch(notices ...notify.Notice)
}

type Engine struct {
	bookings repository.BookingRepository
	locker   lock.Locker
	clock    clock.Clock
	notices  NoticeSink
	retries  RetryQueue
	cfg      *config.Config
}

// NewEngine wires the state machine. retries may be nil, in which case
// cascade steps that exhaust their in-process attempts are only reported.
func NewEngine(
	bookings repository.BookingRepository,
	locker lock.Locker,
	clk clock.Clock,
	notices NoticeSink,
	retries RetryQueue,
	cfg *config.Config,
) *Engine {
	return &Engine{
		bookings: bookings,
		locker:   locker,
		clock:    clk,
		notices:  notices,
		retries:  retries,
		cfg:      cfg,
	}
}

func (e *Engine) load(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	b, err := e.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, e.storeError("find booking", id, err)
	}
	return b, nil
}

func (e *Engine) lockBooking(ctx context.Context, b *model.Booking) (lock.Unlock, error) {
	unlock, err := e.locker.Lock(ctx, lock.FacilityKey(b.FacilityID), lock.UserKey(b.UserID))
	if err != nil {
		return nil, apperrors.Conflict("The facility is busy with another request, please retry").
			WithDetail("facility_id", b.FacilityID)
	}
	return unlock, nil
}

func (e *Engine) storeError(op, id string, err error) error {
	e.cfg.Log.Error("Booking store operation failed", "operation", op, "id", id, "error", err)
	return apperrors.Unavailable("Booking store", err)
}

func invalidState(b *model.Booking, action string) error {
	return apperrors.InvalidState(fmt.Sprintf("Cannot %s a %s booking", action, b.Status)).
		WithDetail("booking_id", b.ID).
		WithDetail("status", b.Status)
}

func notice(kind notify.Kind, b *model.Booking, reason, message string, at time.Time) notify.Notice {
	return notify.Notice{
		Kind:        kind,
		RecipientID: b.UserID,
		BookingID:   b.ID,
		FacilityID:  b.FacilityID,
		Reason:      reason,
		Message:     message,
		OccurredAt:  at,
	}
}

func (e *Engine) dispatch(notices ...notify.Notice) {
	if e.notices == nil || len(notices) == 0 {
		return
	}
	e.notices.Dispatch(notices...)
}
