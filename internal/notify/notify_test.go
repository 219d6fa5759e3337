package notify

import (
	"context"
	"errors"
	"spacebook/pkg/kafka"
	"spacebook/pkg/logger"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockPublisher struct {
	publishFunc func(ctx context.Context, msg kafka.Message) error
}

func (m *mockPublisher) Publish(ctx context.Context, msg kafka.Message) error {
	return m.publishFunc(ctx, msg)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
	delay   time.Duration
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notice) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

func TestKafkaNotifier_Publish(t *testing.T) {
	var got kafka.Message
	pub := &mockPublisher{publishFunc: func(ctx context.Context, msg kafka.Message) error {
		got = msg
		return nil
	}}
	n := NewKafkaNotifier(pub, "bookings")

	notice := Notice{
		Kind:        KindBookingAutoDenied,
		RecipientID: "user-2",
		BookingID:   "b-2",
		Reason:      "slot_taken",
		OccurredAt:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := n.Notify(context.Background(), notice); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if got.Key != "user-2" {
		t.Errorf("key = %q, want recipient id", got.Key)
	}
	if got.GetEventType() != EventTypeNotice {
		t.Errorf("event type = %q", got.GetEventType())
	}
	if got.Headers["notice-kind"] != string(KindBookingAutoDenied) {
		t.Errorf("notice-kind header = %q", got.Headers["notice-kind"])
	}
	var decoded Notice
	if err := got.DecodeValue(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Reason != "slot_taken" || decoded.BookingID != "b-2" {
		t.Errorf("decoded notice = %+v", decoded)
	}
}

func TestKafkaNotifier_PublishError(t *testing.T) {
	pub := &mockPublisher{publishFunc: func(ctx context.Context, msg kafka.Message) error {
		return errors.New("broker down")
	}}
	n := NewKafkaNotifier(pub, "bookings")

	err := n.Notify(context.Background(), Notice{Kind: KindBookingDenied, RecipientID: "u", BookingID: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDispatcher_DeliversAll(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, logger.Discard(), time.Second, 2)

	for i := 0; i < 10; i++ {
		d.Dispatch(Notice{Kind: KindBookingApproved, RecipientID: "u", BookingID: "b"})
	}
	d.Wait()

	if len(rec.notices) != 10 {
		t.Errorf("delivered %d notices, want 10", len(rec.notices))
	}
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	rec := &recordingNotifier{delay: 20 * time.Millisecond}
	d := NewDispatcher(rec, logger.Discard(), time.Second, 4)

	d.Dispatch(Notice{Kind: KindBookingApproved, RecipientID: "u", BookingID: "before"})
	d.Close()

	rec.mu.Lock()
	delivered := len(rec.notices)
	rec.mu.Unlock()
	if delivered != 1 {
		t.Fatalf("Close returned with %d delivered notices, want 1", delivered)
	}

	d.Dispatch(Notice{Kind: KindBookingApproved, RecipientID: "u", BookingID: "after"})
	d.Wait()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.notices) != 1 {
		t.Errorf("notice dispatched after Close was delivered")
	}
}

func TestDispatcher_ConcurrentDispatchDuringClose(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, logger.Discard(), time.Second, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Dispatch(Notice{Kind: KindBookingDenied, RecipientID: "u", BookingID: "b"})
			}
		}()
	}
	d.Close()
	wg.Wait()
	d.Wait()

	if len(d.slots) != 0 {
		t.Errorf("%d worker slots still held", len(d.slots))
	}
}

func TestDispatcher_SkipsMissingRecipient(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, logger.Discard(), time.Second, 1)

	d.Dispatch(Notice{Kind: KindBookingApproved, BookingID: "b"})
	d.Wait()

	if len(rec.notices) != 0 {
		t.Errorf("expected no delivery, got %d", len(rec.notices))
	}
}

func TestDispatcher_ErrorsDoNotReachCaller(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("collaborator down")}
	d := NewDispatcher(rec, logger.Discard(), time.Second, 1)

	d.Dispatch(Notice{Kind: KindBookingDenied, RecipientID: "u", BookingID: "b"})
	d.Wait()

	if len(rec.notices) != 1 {
		t.Errorf("expected one attempt, got %d", len(rec.notices))
	}
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	notifier := notifierFunc(func(ctx context.Context, n Notice) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	d := NewDispatcher(notifier, logger.Discard(), time.Second, 3)

	for i := 0; i < 20; i++ {
		d.Dispatch(Notice{Kind: KindBookingApproved, RecipientID: "u", BookingID: "b"})
	}
	d.Wait()

	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", peak.Load())
	}
}

type notifierFunc func(ctx context.Context, n Notice) error

func (f notifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }
