package repository

import (
	"context"
	"errors"
	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/pkg/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func seed(t *testing.T, repo BookingRepository, bookings ...*model.Booking) {
	t.Helper()
	for _, b := range bookings {
		if err := repo.Create(context.Background(), b); err != nil {
			t.Fatalf("Create(%s): %v", b.ID, err)
		}
	}
}

func TestMemory_CreateDuplicate(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo, &model.Booking{ID: "b1"})

	err := repo.Create(context.Background(), &model.Booking{ID: "b1"})
	if !errors.Is(err, bookingserrors.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo, &model.Booking{ID: "b1", Purpose: "study", Status: model.StatusPending})

	b, _ := repo.FindByID(context.Background(), "b1")
	b.Purpose = "mutated"

	again, _ := repo.FindByID(context.Background(), "b1")
	if again.Purpose != "study" {
		t.Errorf("stored booking was mutated through a returned pointer")
	}
}

func TestMemory_FindOverlapping(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo,
		&model.Booking{ID: "a", FacilityID: "room-a", Start: at(10, 0), End: at(11, 0), Status: model.StatusApproved},
		&model.Booking{ID: "b", FacilityID: "room-a", Start: at(11, 0), End: at(12, 0), Status: model.StatusApproved},
		&model.Booking{ID: "c", FacilityID: "room-a", Start: at(10, 30), End: at(11, 30), Status: model.StatusPending},
		&model.Booking{ID: "d", FacilityID: "room-b", Start: at(10, 0), End: at(11, 0), Status: model.StatusApproved},
		&model.Booking{ID: "e", FacilityID: "room-a", Start: at(10, 0), End: at(11, 0), Status: model.StatusDenied},
	)

	got, err := repo.FindOverlapping(context.Background(), "room-a", at(10, 0), at(11, 0), model.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected only booking a, got %v", ids(got))
	}

	got, _ = repo.FindOverlapping(context.Background(), "room-a", at(10, 0), at(11, 0), model.ActiveStatuses...)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("expected a and c, got %v", ids(got))
	}
}

func TestMemory_FindActiveByUser(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo,
		&model.Booking{ID: "past", UserID: "u1", Start: at(8, 0), End: at(9, 0), Status: model.StatusApproved},
		&model.Booking{ID: "now", UserID: "u1", Start: at(9, 30), End: at(10, 30), Status: model.StatusApproved},
		&model.Booking{ID: "later", UserID: "u1", Start: at(14, 0), End: at(15, 0), Status: model.StatusPending},
		&model.Booking{ID: "cancelled", UserID: "u1", Start: at(16, 0), End: at(17, 0), Status: model.StatusCancelled},
		&model.Booking{ID: "other", UserID: "u2", Start: at(14, 0), End: at(15, 0), Status: model.StatusPending},
	)

	got, _ := repo.FindActiveByUser(context.Background(), "u1", at(10, 0))
	if len(got) != 2 || got[0].ID != "now" || got[1].ID != "later" {
		t.Errorf("unexpected active bookings: %v", ids(got))
	}
}

func TestMemory_FindArrivalOverdue(t *testing.T) {
	deadline := at(9, 15)
	confirmed := at(9, 5)
	repo := NewMemoryBookingRepository()
	seed(t, repo,
		&model.Booking{ID: "late", Status: model.StatusApproved, ArrivalDeadline: &deadline},
		&model.Booking{ID: "arrived", Status: model.StatusApproved, ArrivalDeadline: &deadline, ArrivalConfirmed: true, ArrivalConfirmedAt: &confirmed},
		&model.Booking{ID: "pending", Status: model.StatusPending},
	)

	got, _ := repo.FindArrivalOverdue(context.Background(), at(9, 16))
	if len(got) != 1 || got[0].ID != "late" {
		t.Errorf("unexpected overdue bookings: %v", ids(got))
	}
	got, _ = repo.FindArrivalOverdue(context.Background(), at(9, 15))
	if len(got) != 0 {
		t.Errorf("deadline itself is not overdue, got %v", ids(got))
	}
}

func TestMemory_TransitionConditional(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo, &model.Booking{ID: "b1", Status: model.StatusDenied})

	current, err := repo.Transition(context.Background(), "b1",
		[]model.Status{model.StatusPending}, model.StatusChange{To: model.StatusApproved})
	if !errors.Is(err, bookingserrors.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	if current == nil || current.Status != model.StatusDenied {
		t.Errorf("mismatch should return the stored booking")
	}

	_, err = repo.Transition(context.Background(), "missing",
		[]model.Status{model.StatusPending}, model.StatusChange{To: model.StatusApproved})
	if !errors.Is(err, bookingserrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ConcurrentTransitionSingleWinner(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo, &model.Booking{ID: "b1", Status: model.StatusPending})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Transition(context.Background(), "b1",
				[]model.Status{model.StatusPending}, model.StatusChange{To: model.StatusApproved})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestMemory_UpdateDetailsOnlyPending(t *testing.T) {
	repo := NewMemoryBookingRepository()
	seed(t, repo,
		&model.Booking{ID: "p", Status: model.StatusPending, Purpose: "old"},
		&model.Booking{ID: "a", Status: model.StatusApproved, Purpose: "old"},
	)

	if err := repo.UpdateDetails(context.Background(), &model.Booking{ID: "p", Purpose: "new"}); err != nil {
		t.Fatalf("UpdateDetails(pending): %v", err)
	}
	if b, _ := repo.FindByID(context.Background(), "p"); b.Purpose != "new" {
		t.Errorf("purpose not updated")
	}
	if err := repo.UpdateDetails(context.Background(), &model.Booking{ID: "a", Purpose: "new"}); !errors.Is(err, bookingserrors.ErrStatusMismatch) {
		t.Errorf("expected ErrStatusMismatch for approved booking, got %v", err)
	}
}

func TestMemory_FindAllPaginates(t *testing.T) {
	repo := NewMemoryBookingRepository()
	for i := 0; i < 5; i++ {
		seed(t, repo, &model.Booking{ID: string(rune('a' + i)), UserID: "u1", Start: at(8+i, 0), End: at(9+i, 0), Status: model.StatusPending})
	}

	page, _ := repo.FindAll(context.Background(), Filter{UserID: "u1"}, 2, 2)
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "d" {
		t.Errorf("unexpected page: %v", ids(page))
	}
	count, _ := repo.Count(context.Background(), Filter{UserID: "u1", Statuses: []model.Status{model.StatusPending}})
	if count != 5 {
		t.Errorf("Count = %d, want 5", count)
	}
	empty, _ := repo.FindAll(context.Background(), Filter{}, 10, 50)
	if len(empty) != 0 {
		t.Errorf("offset past end should be empty")
	}
}

func ids(bookings []*model.Booking) []string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}
