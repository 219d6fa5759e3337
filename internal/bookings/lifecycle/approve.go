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

// CascadeTimeout bounds the cascade that follows an approval.
const CascadeTimeout = 30 * time.Second

const reasonCascadeLookup = "cascade_lookup"

// CascadeFailure is a denial the cascade could not apply in process. It
// has been handed to the retry queue when one is configured. BookingID is
// empty when the displaced bookings could not be listed at all.
type CascadeFailure struct {
	BookingID string `json:"booking_id,omitempty"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
	Enqueued  bool   `json:"enqueued"`
}

type ApproveResult struct {
	Booking         *model.Booking   `json:"booking"`
	CascadedDenials []*model.Booking `json:"cascaded_denials"`
	CascadeFailures []CascadeFailure `json:"cascade_failures"`
}

// Approve moves a pending booking to approved and then denies the pending
// bookings it displaces. The approval itself is never rolled back; cascade
// problems are reported in the result.
func (e *Engine) Approve(ctx context.Context, id, adminResponse string, actor model.Actor) (*ApproveResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can approve bookings")
	}

	b, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == model.StatusApproved {
		return newApproveResult(b), nil
	}
	if b.Status != model.StatusPending {
		return nil, invalidState(b, "approve")
	}

	approved, alreadyApproved, err := e.approveLocked(ctx, b, adminResponse)
	if err != nil {
		return nil, err
	}
	result := newApproveResult(approved)
	if alreadyApproved {
		return result, nil
	}

	e.cfg.Log.Info("Booking approved",
		"id", approved.ID,
		"facility_id", approved.FacilityID,
		"user_id", approved.UserID,
		"approved_by", actor.UserID,
		"arrival_deadline", approved.ArrivalDeadline,
	)
	e.dispatch(notice(notify.KindBookingApproved, approved, "", adminResponse, approved.UpdatedAt))

	// the approval is committed, so the cascade must outlive the request
	cascadeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CascadeTimeout)
	defer cancel()
	e.cascade(cascadeCtx, approved, result)
	return result, nil
}

func newApproveResult(b *model.Booking) *ApproveResult {
	return &ApproveResult{
		Booking:         b,
		CascadedDenials: []*model.Booking{},
		CascadeFailures: []CascadeFailure{},
	}
}

func (e *Engine) approveLocked(ctx context.Context, b *model.Booking, adminResponse string) (*model.Booking, bool, error) {
	unlock, err := e.lockBooking(ctx, b)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	overlapping, err := e.bookings.FindOverlapping(ctx, b.FacilityID, b.Start, b.End, model.StatusApproved)
	if err != nil {
		return nil, false, e.storeError("find overlapping approved", b.ID, err)
	}
	var conflicts []*model.Booking
	for _, o := range overlapping {
		if o.ID != b.ID {
			conflicts = append(conflicts, o)
		}
	}
	if len(conflicts) > 0 {
		return nil, false, apperrors.Conflict("Another approved booking already occupies this time").
			WithReason(model.ReasonSlotTaken).
			WithDetail("booking_id", b.ID).
			WithDetail("conflicting_bookings", model.Summaries(conflicts))
	}

	now := e.clock.Now().UTC()
	deadline := e.ArrivalDeadline(b.Start)
	updated, err := e.bookings.Transition(ctx, b.ID, []model.Status{model.StatusPending}, model.StatusChange{
		To:              model.StatusApproved,
		AdminResponse:   adminResponse,
		ArrivalDeadline: &deadline,
		At:              now,
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusMismatch) && updated != nil {
			if updated.Status == model.StatusApproved {
				return updated, true, nil
			}
			return nil, false, invalidState(updated, "approve")
		}
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, false, apperrors.NotFoundWithID("Booking", b.ID)
		}
		return nil, false, e.storeError("approve booking", b.ID, err)
	}
	return updated, false, nil
}

type cascadeStep struct {
	booking *model.Booking
	reason  string
	message string
}

func (e *Engine) cascade(ctx context.Context, approved *model.Booking, result *ApproveResult) {
	steps, err := e.cascadeSteps(ctx, approved)
	if err != nil {
		e.cfg.Log.Error("Failed to collect cascade targets", "approved_id", approved.ID, "error", err)
		result.CascadeFailures = append(result.CascadeFailures, CascadeFailure{
			Reason:   reasonCascadeLookup,
			Error:    err.Error(),
			Enqueued: e.enqueueTask(ctx, CascadeTask{ApprovedBookingID: approved.ID}, err),
		})
		return
	}

	for _, step := range steps {
		denied, err := e.denyWithRetry(ctx, step)
		if err != nil {
			failure := CascadeFailure{BookingID: step.booking.ID, Reason: step.reason, Error: err.Error()}
			failure.Enqueued = e.enqueue(ctx, approved, step, err)
			result.CascadeFailures = append(result.CascadeFailures, failure)
			continue
		}
		if denied == nil {
			continue
		}
		result.CascadedDenials = append(result.CascadedDenials, denied)
		e.dispatch(notice(notify.KindBookingAutoDenied, denied, step.reason, step.message, denied.UpdatedAt))
	}

	if len(result.CascadedDenials) > 0 || len(result.CascadeFailures) > 0 {
		e.cfg.Log.Info("Approval cascade finished",
			"approved_id", approved.ID,
			"denied", len(result.CascadedDenials),
			"failed", len(result.CascadeFailures),
		)
	}
}

// cascadeSteps lists the pending bookings displaced by approved: first the
// overlapping ones on the same facility, then, when the one-active-booking
// policy is on, the requester's other pending bookings.
func (e *Engine) cascadeSteps(ctx context.Context, approved *model.Booking) ([]cascadeStep, error) {
	seen := map[string]bool{approved.ID: true}
	var steps []cascadeStep

	overlapping, err := e.bookings.FindOverlapping(ctx, approved.FacilityID, approved.Start, approved.End, model.StatusPending)
	if err != nil {
		return nil, err
	}
	for _, o := range overlapping {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		steps = append(steps, cascadeStep{booking: o, reason: model.ReasonSlotTaken, message: MessageSlotTaken})
	}

	if !e.cfg.CascadeDenyUserPending {
		return steps, nil
	}
	own, err := e.bookings.FindByUserAndStatus(ctx, approved.UserID, model.StatusPending)
	if err != nil {
		return nil, err
	}
	for _, o := range own {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		steps = append(steps, cascadeStep{booking: o, reason: model.ReasonOtherBookingApproved, message: MessageOtherBookingApproved})
	}
	return steps, nil
}

// denyWithRetry returns nil, nil when the booking left pending on its own.
func (e *Engine) denyWithRetry(ctx context.Context, step cascadeStep) (*model.Booking, error) {
	attempts := max(1, e.cfg.CascadeRetryAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		denied, err := e.autoDeny(ctx, step.booking.ID, step.reason, step.message)
		if err == nil {
			return denied, nil
		}
		lastErr = err
		e.cfg.Log.Warn("Cascade denial failed",
			"id", step.booking.ID,
			"reason", step.reason,
			"attempt", attempt,
			"error", err,
		)
		if attempt < attempts && !sleep(ctx, e.cfg.CascadeRetryBackoff*time.Duration(attempt)) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (e *Engine) autoDeny(ctx context.Context, id, reason, message string) (*model.Booking, error) {
	denied, err := e.bookings.Transition(ctx, id, []model.Status{model.StatusPending}, model.StatusChange{
		To:            model.StatusDenied,
		Reason:        reason,
		AdminResponse: message,
		At:            e.clock.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusMismatch) || errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return denied, nil
}

func (e *Engine) enqueue(ctx context.Context, approved *model.Booking, step cascadeStep, cause error) bool {
	return e.enqueueTask(ctx, CascadeTask{
		BookingID:         step.booking.ID,
		ApprovedBookingID: approved.ID,
		Reason:            step.reason,
		Message:           step.message,
	}, cause)
}

// enqueueTask hands task to the retry queue. A task without BookingID asks
// the worker to recompute the whole cascade of the approval.
func (e *Engine) enqueueTask(ctx context.Context, task CascadeTask, cause error) bool {
	if e.retries == nil {
		e.cfg.Log.Error("Cascade denial abandoned, no retry queue configured",
			"id", task.BookingID,
			"approved_id", task.ApprovedBookingID,
			"error", cause,
		)
		return false
	}

	task.FailedAt = e.clock.Now().UTC()
	if err := e.retries.Enqueue(ctx, task); err != nil {
		e.cfg.Log.Error("Failed to enqueue cascade retry",
			"id", task.BookingID,
			"approved_id", task.ApprovedBookingID,
			"error", err,
			"cause", cause,
		)
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
