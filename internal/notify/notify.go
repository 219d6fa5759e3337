// Package notify is the boundary to the notification collaborator. The
// engine only publishes notices; delivery (email, push, chat) happens
// elsewhere.
package notify

import (
	"context"
	"spacebook/pkg/logger"
	"time"
)

type Kind string

const (
	KindBookingApproved       Kind = "booking_approved"
	KindBookingDenied         Kind = "booking_denied"
	KindBookingCancelled      Kind = "booking_cancelled"
	KindBookingAutoDenied     Kind = "booking_auto_denied"
	KindBookingForceCancelled Kind = "booking_force_cancelled"
	KindArrivalTimeout        Kind = "arrival_timeout"
)

type Notice struct {
	Kind        Kind      `json:"kind"`
	RecipientID string    `json:"recipient_id"`
	BookingID   string    `json:"booking_id"`
	FacilityID  string    `json:"facility_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// LogNotifier writes notices to the log instead of publishing them.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, notice Notice) error {
	n.log.Info("Notice",
		"kind", notice.Kind,
		"recipient_id", notice.RecipientID,
		"booking_id", notice.BookingID,
		"facility_id", notice.FacilityID,
		"reason", notice.Reason,
		"message", notice.Message,
	)
	return nil
}
