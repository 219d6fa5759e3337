package lifecycle

import (
	"context"
	"errors"
	"time"

	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/notify"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/model"
)

// maxTransitionAttempts bounds how often a cancel re-reads a booking whose
// status moved underneath it.
const maxTransitionAttempts = 3

// Deny rejects a pending booking. Denying a booking that is already
// denied or cancelled succeeds without a write.
func (e *Engine) Deny(ctx context.Context, id, reason string, actor model.Actor) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can deny bookings")
	}

	b, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if b.Status.Terminal() {
			return b, nil
		}
		if b.Status != model.StatusPending {
			return nil, invalidState(b, "deny")
		}

		denied, err := e.bookings.Transition(ctx, b.ID, []model.Status{model.StatusPending}, model.StatusChange{
			To:            model.StatusDenied,
			Reason:        model.ReasonDeniedByAdmin,
			AdminResponse: reason,
			At:            e.clock.Now().UTC(),
		})
		if err == nil {
			e.cfg.Log.Info("Booking denied", "id", denied.ID, "denied_by", actor.UserID)
			e.dispatch(notice(notify.KindBookingDenied, denied, model.ReasonDeniedByAdmin, reason, denied.UpdatedAt))
			return denied, nil
		}
		if errors.Is(err, bookingserrors.ErrStatusMismatch) && denied != nil {
			b = denied
			continue
		}
		return nil, e.transitionError("deny booking", b.ID, err)
	}
	return nil, retryLater(b.ID)
}

// Cancel withdraws a booking on behalf of its owner or an administrator.
// A pending booking is cancelled outright. An approved booking that has
// not started is cancelled before start; one in progress ends early with
// its end moved to now. An approved booking that already ended cannot be
// cancelled. Terminal bookings are returned unchanged.
func (e *Engine) Cancel(ctx context.Context, id, reason string, actor model.Actor) (*model.Booking, error) {
	b, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(b.UserID) {
		return nil, apperrors.Forbidden("You can only cancel your own bookings")
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if b.Status.Terminal() {
			return b, nil
		}

		now := e.clock.Now().UTC()
		change := model.StatusChange{To: model.StatusCancelled, AdminResponse: reason, At: now}
		switch {
		case b.Status == model.StatusPending && b.Started(now):
			change.Reason = model.ReasonWithdrawn
		case !b.Started(now):
			change.Reason = model.ReasonCancelledBeforeStart
		case !b.Ended(now):
			change.Reason = model.ReasonEndedEarly
			change.End = &now
		default:
			return nil, apperrors.InvalidState("Cannot cancel a booking that has already ended").
				WithDetail("booking_id", b.ID).
				WithDetail("end", b.End)
		}

		cancelled, err := e.bookings.Transition(ctx, b.ID, []model.Status{b.Status}, change)
		if err == nil {
			e.cfg.Log.Info("Booking cancelled",
				"id", cancelled.ID,
				"reason", change.Reason,
				"previous_status", b.Status,
				"cancelled_by", actor.UserID,
			)
			if actor.UserID != cancelled.UserID {
				e.dispatch(notice(notify.KindBookingCancelled, cancelled, change.Reason, reason, now))
			}
			return cancelled, nil
		}
		if errors.Is(err, bookingserrors.ErrStatusMismatch) && cancelled != nil {
			b = cancelled
			continue
		}
		return nil, e.transitionError("cancel booking", b.ID, err)
	}
	return nil, retryLater(b.ID)
}

// ConfirmArrival records that the requester checked in. Confirming twice
// is a no-op. A booking whose arrival deadline already passed is cancelled
// as timed out instead.
func (e *Engine) ConfirmArrival(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can confirm arrivals")
	}

	b, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.StatusApproved {
		return nil, invalidState(b, "confirm arrival for")
	}
	if b.ArrivalConfirmed {
		return b, nil
	}

	unlock, err := e.lockBooking(ctx, b)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.clock.Now().UTC()
	if b.Ended(now) {
		return nil, apperrors.InvalidState("Cannot confirm arrival for a booking that has already ended").
			WithDetail("booking_id", b.ID)
	}
	if b.ArrivalDeadline != nil && b.ArrivalDeadline.Before(now) {
		if _, err := e.timeOut(ctx, b, now); err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidState("The arrival window has closed and the booking was cancelled").
			WithReason(model.ReasonArrivalTimeout).
			WithDetail("booking_id", b.ID).
			WithDetail("arrival_deadline", *b.ArrivalDeadline)
	}

	confirmed, err := e.bookings.Transition(ctx, b.ID, []model.Status{model.StatusApproved}, model.StatusChange{
		To:                 model.StatusApproved,
		ArrivalConfirmedAt: &now,
		At:                 now,
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusMismatch) && confirmed != nil {
			return nil, invalidState(confirmed, "confirm arrival for")
		}
		return nil, e.transitionError("confirm arrival", b.ID, err)
	}

	e.cfg.Log.Info("Arrival confirmed", "id", confirmed.ID, "confirmed_by", actor.UserID)
	return confirmed, nil
}

func (e *Engine) transitionError(op, id string, err error) error {
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	return e.storeError(op, id, err)
}

func retryLater(id string) error {
	return apperrors.Conflict("The booking is being changed by another request, please retry").
		WithDetail("booking_id", id)
}

// ArrivalDeadline is the latest check-in time for a booking starting at start.
func (e *Engine) ArrivalDeadline(start time.Time) time.Time {
	return start.Add(e.cfg.ArrivalGrace)
}
