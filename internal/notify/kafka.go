package notify

import (
	"context"
	"fmt"
	"spacebook/pkg/kafka"
)

const (
	EventTypeNotice     = "booking.notice"
	noticeSchemaVersion = "1"
)

// KafkaNotifier publishes notices keyed by recipient, so every user's
// notices land on one partition in order.
type KafkaNotifier struct {
	publisher kafka.Publisher
	source    string
}

func NewKafkaNotifier(publisher kafka.Publisher, source string) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, source: source}
}

func (n *KafkaNotifier) Notify(ctx context.Context, notice Notice) error {
	msg, err := kafka.NewMessage().
		WithKey(notice.RecipientID).
		WithValue(notice).
		WithEventType(EventTypeNotice).
		WithHeader("notice-kind", string(notice.Kind)).
		WithSchemaVersion(noticeSchemaVersion).
		WithSource(n.source).
		WithTimestamp(notice.OccurredAt).
		Build()
	if err != nil {
		return fmt.Errorf("build notice message: %w", err)
	}
	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s notice for booking %s: %w", notice.Kind, notice.BookingID, err)
	}
	return nil
}
