package lifecycle

import (
	"context"
	"errors"
	"time"

	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/notify"
	"spacebook/pkg/model"
)

// SweepArrivals cancels approved bookings whose arrival deadline passed
// without a check-in. It returns the bookings it cancelled. Safe to run
// from several places at once; each booking is cancelled at most once.
func (e *Engine) SweepArrivals(ctx context.Context) ([]*model.Booking, error) {
	now := e.clock.Now().UTC()
	overdue, err := e.bookings.FindArrivalOverdue(ctx, now)
	if err != nil {
		return nil, e.storeError("find overdue arrivals", "", err)
	}

	cancelled := make([]*model.Booking, 0, len(overdue))
	var firstErr error
	for _, b := range overdue {
		timedOut, err := e.sweepOne(ctx, b, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if timedOut != nil {
			cancelled = append(cancelled, timedOut)
		}
	}

	if len(cancelled) > 0 {
		e.cfg.Log.Info("Arrival sweep cancelled bookings", "count", len(cancelled))
	}
	return cancelled, firstErr
}

func (e *Engine) sweepOne(ctx context.Context, b *model.Booking, now time.Time) (*model.Booking, error) {
	unlock, err := e.lockBooking(ctx, b)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// re-read under the lock; a check-in may have landed since the scan
	current, err := e.bookings.FindByID(ctx, b.ID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, e.storeError("reload overdue booking", b.ID, err)
	}
	if current.Status != model.StatusApproved || current.ArrivalConfirmed ||
		current.ArrivalDeadline == nil || !current.ArrivalDeadline.Before(now) {
		return nil, nil
	}
	return e.timeOut(ctx, current, now)
}

// timeOut cancels b for a missed arrival. Callers hold the booking's lock.
func (e *Engine) timeOut(ctx context.Context, b *model.Booking, now time.Time) (*model.Booking, error) {
	cancelled, err := e.bookings.Transition(ctx, b.ID, []model.Status{model.StatusApproved}, model.StatusChange{
		To:            model.StatusCancelled,
		Reason:        model.ReasonArrivalTimeout,
		AdminResponse: MessageArrivalTimeout,
		At:            now,
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusMismatch) || errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, e.storeError("cancel overdue booking", b.ID, err)
	}

	e.cfg.Log.Info("Booking cancelled for missed arrival",
		"id", cancelled.ID,
		"facility_id", cancelled.FacilityID,
		"user_id", cancelled.UserID,
		"arrival_deadline", b.ArrivalDeadline,
	)
	e.dispatch(notice(notify.KindArrivalTimeout, cancelled, model.ReasonArrivalTimeout, MessageArrivalTimeout, now))
	return cancelled, nil
}

// RunSweeper calls SweepArrivals every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.cfg.Log.Info("Arrival sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.cfg.Log.Info("Arrival sweeper stopped")
			return
		case <-ticker.C:
			if _, err := e.SweepArrivals(ctx); err != nil && ctx.Err() == nil {
				e.cfg.Log.Warn("Arrival sweep incomplete", "error", err)
			}
		}
	}
}
