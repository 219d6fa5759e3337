package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/notify"
	"spacebook/pkg/kafka"
	"spacebook/pkg/model"
)

const (
	EventTypeCascadeRetry    = "booking.cascade-retry"
	cascadeTaskSchemaVersion = "1"
)

// CascadeTask is one cascade denial that failed in process and is retried
// out of band.
type CascadeTask struct {
	BookingID         string    `json:"booking_id"`
	ApprovedBookingID string    `json:"approved_booking_id"`
	Reason            string    `json:"reason"`
	Message           string    `json:"message"`
	FailedAt          time.Time `json:"failed_at"`
}

type RetryQueue interface {
	Enqueue(ctx context.Context, task CascadeTask) error
}

// KafkaRetryQueue publishes cascade tasks keyed by the approved booking so
// all follow-ups of one approval stay ordered.
type KafkaRetryQueue struct {
	publisher kafka.Publisher
	source    string
}

func NewKafkaRetryQueue(publisher kafka.Publisher, source string) *KafkaRetryQueue {
	return &KafkaRetryQueue{publisher: publisher, source: source}
}

func (q *KafkaRetryQueue) Enqueue(ctx context.Context, task CascadeTask) error {
	msg, err := kafka.NewMessage().
		WithKey(task.ApprovedBookingID).
		WithValue(task).
		WithEventType(EventTypeCascadeRetry).
		WithSchemaVersion(cascadeTaskSchemaVersion).
		WithSource(q.source).
		Build()
	if err != nil {
		return err
	}
	return q.publisher.Publish(ctx, msg)
}

// HandleCascadeMessage is the consumer handler of the cascade-retry topic.
func (e *Engine) HandleCascadeMessage(ctx context.Context, msg kafka.Message) error {
	var task CascadeTask
	if err := msg.DecodeValue(&task); err != nil {
		return err
	}
	if task.ApprovedBookingID == "" {
		return kafka.NewPermanentError("cascade task without approved booking id", kafka.ErrInvalidMessage)
	}
	_, err := e.ApplyCascadeTask(ctx, task)
	return err
}

// ApplyCascadeTask re-applies cascade denials for an approval. A task with
// a BookingID denies that one booking; a task without one recomputes every
// pending booking the approval displaces. Nothing is denied when the
// approval no longer stands or a target already left pending. Store
// failures are returned as transient so the consumer retries.
func (e *Engine) ApplyCascadeTask(ctx context.Context, task CascadeTask) ([]*model.Booking, error) {
	approved, err := e.bookings.FindByID(ctx, task.ApprovedBookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, kafka.NewTransientError("load approved booking", err)
	}
	if approved.Status != model.StatusApproved {
		e.cfg.Log.Info("Skipping cascade task, approval no longer stands",
			"id", task.BookingID,
			"approved_id", task.ApprovedBookingID,
			"approved_status", approved.Status,
		)
		return nil, nil
	}

	if task.BookingID == "" {
		return e.recomputeCascade(ctx, approved)
	}

	target, err := e.bookings.FindByID(ctx, task.BookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, nil
		}
		return nil, kafka.NewTransientError("load cascade target", err)
	}
	if target.Status != model.StatusPending {
		return nil, nil
	}
	// a pending booking may have been moved off the approved slot since
	if task.Reason == model.ReasonSlotTaken &&
		(target.FacilityID != approved.FacilityID || !target.Overlaps(approved.Start, approved.End)) {
		return nil, nil
	}

	denied, err := e.applyStep(ctx, approved, cascadeStep{booking: target, reason: task.Reason, message: task.Message})
	if err != nil {
		return nil, err
	}
	if denied == nil {
		return nil, nil
	}
	return []*model.Booking{denied}, nil
}

func (e *Engine) recomputeCascade(ctx context.Context, approved *model.Booking) ([]*model.Booking, error) {
	steps, err := e.cascadeSteps(ctx, approved)
	if err != nil {
		return nil, kafka.NewTransientError("collect cascade targets", err)
	}

	var denials []*model.Booking
	var failed int
	for _, step := range steps {
		denied, err := e.applyStep(ctx, approved, step)
		if err != nil {
			failed++
			continue
		}
		if denied != nil {
			denials = append(denials, denied)
		}
	}
	if failed > 0 {
		// denied bookings are skipped on replay
		return denials, kafka.NewTransientError(fmt.Sprintf("deny %d of %d cascade targets", failed, len(steps)), nil)
	}
	return denials, nil
}

func (e *Engine) applyStep(ctx context.Context, approved *model.Booking, step cascadeStep) (*model.Booking, error) {
	denied, err := e.autoDeny(ctx, step.booking.ID, step.reason, step.message)
	if err != nil {
		return nil, kafka.NewTransientError(fmt.Sprintf("deny booking %s", step.booking.ID), err)
	}
	if denied == nil {
		return nil, nil
	}

	e.cfg.Log.Info("Cascade denial applied from retry queue",
		"id", denied.ID,
		"approved_id", approved.ID,
		"reason", step.reason,
	)
	e.dispatch(notice(notify.KindBookingAutoDenied, denied, step.reason, step.message, denied.UpdatedAt))
	return denied, nil
}
