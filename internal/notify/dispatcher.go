package notify

import (
	"context"
	"spacebook/pkg/logger"
	"sync"
	"time"
)

const DefaultConcurrency = 16

// Dispatcher sends notices in the background. Callers never wait on the
// collaborator and never see its errors; failures are logged.
type Dispatcher struct {
	notifier Notifier
	log      *logger.Logger
	timeout  time.Duration
	slots    chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier Notifier, log *logger.Logger, timeout time.Duration, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{
		notifier: notifier,
		log:      log,
		timeout:  timeout,
		slots:    make(chan struct{}, concurrency),
	}
}

// Dispatch blocks only while all workers are busy, and for at most the
// notify timeout. A notice that cannot get a worker in time is dropped, as
// is every notice dispatched after Close.
func (d *Dispatcher) Dispatch(notices ...Notice) {
	for _, notice := range notices {
		if notice.RecipientID == "" {
			continue
		}
		if !d.acquire() {
			d.log.Warn("Dropped notice, dispatcher saturated",
				"kind", notice.Kind,
				"booking_id", notice.BookingID,
				"recipient_id", notice.RecipientID,
			)
			continue
		}

		if !d.start() {
			<-d.slots
			d.log.Warn("Dropped notice, dispatcher closed",
				"kind", notice.Kind,
				"booking_id", notice.BookingID,
				"recipient_id", notice.RecipientID,
			)
			continue
		}
		go func(n Notice) {
			defer d.wg.Done()
			defer func() { <-d.slots }()
			d.send(n)
		}(notice)
	}
}

// start registers one delivery unless the dispatcher is closed. Add runs
// under the read lock so it can never race with the Wait in Close.
func (d *Dispatcher) start() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.wg.Add(1)
	return true
}

func (d *Dispatcher) acquire() bool {
	select {
	case d.slots <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case d.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (d *Dispatcher) send(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.Error("Failed to deliver notice",
			"kind", n.Kind,
			"booking_id", n.BookingID,
			"recipient_id", n.RecipientID,
			"error", err,
		)
	}
}

// Wait blocks until every dispatched notice has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting notices and waits for the in-flight ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
