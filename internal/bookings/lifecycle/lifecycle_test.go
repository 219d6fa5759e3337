package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spacebook/internal/bookings/repository"
	"spacebook/internal/notify"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/kafka"
	"spacebook/pkg/lock"
	"spacebook/pkg/model"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

var (
	admin = model.Actor{UserID: "root", Roles: []model.Role{model.RoleAdmin}}
	alice = model.Actor{UserID: "alice", Roles: []model.Role{model.RoleMember}}
	bob   = model.Actor{UserID: "bob", Roles: []model.Role{model.RoleMember}}
)

type recordingSink struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (s *recordingSink) Dispatch(notices ...notify.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notices...)
}

func (s *recordingSink) find(kind notify.Kind, bookingID string) (notify.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notices {
		if n.Kind == kind && n.BookingID == bookingID {
			return n, true
		}
	}
	return notify.Notice{}, false
}

type mockRetryQueue struct {
	mu    sync.Mutex
	tasks []CascadeTask
	err   error
}

func (q *mockRetryQueue) Enqueue(ctx context.Context, task CascadeTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// flakyRepository fails Transition for selected bookings.
type flakyRepository struct {
	repository.BookingRepository
	mu       sync.Mutex
	failFor  map[string]bool
	attempts map[string]int
}

func (r *flakyRepository) Transition(ctx context.Context, id string, from []model.Status, change model.StatusChange) (*model.Booking, error) {
	r.mu.Lock()
	r.attempts[id]++
	fail := r.failFor[id]
	r.mu.Unlock()
	if fail {
		return nil, errors.New("write conflict")
	}
	return r.BookingRepository.Transition(ctx, id, from, change)
}

// requestScopedRepository honours ctx like a network store does and
// cancels the request right after the approval is written.
type requestScopedRepository struct {
	repository.BookingRepository
	cancel            context.CancelFunc
	mu                sync.Mutex
	failPendingLookup bool
}

func (r *requestScopedRepository) FindOverlapping(ctx context.Context, facilityID string, start, end time.Time, statuses ...model.Status) ([]*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	fail := r.failPendingLookup
	r.mu.Unlock()
	if fail && len(statuses) == 1 && statuses[0] == model.StatusPending {
		return nil, errors.New("store unreachable")
	}
	return r.BookingRepository.FindOverlapping(ctx, facilityID, start, end, statuses...)
}

func (r *requestScopedRepository) FindByUserAndStatus(ctx context.Context, userID string, statuses ...model.Status) ([]*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.BookingRepository.FindByUserAndStatus(ctx, userID, statuses...)
}

func (r *requestScopedRepository) Transition(ctx context.Context, id string, from []model.Status, change model.StatusChange) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	updated, err := r.BookingRepository.Transition(ctx, id, from, change)
	if err == nil && change.To == model.StatusApproved && r.cancel != nil {
		r.cancel()
	}
	return updated, err
}

type fixture struct {
	engine   *Engine
	bookings repository.BookingRepository
	clock    *clock.Fake
	sink     *recordingSink
	queue    *mockRetryQueue
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryBookingRepository())
}

func newFixtureWithRepo(t *testing.T, repo repository.BookingRepository) *fixture {
	t.Helper()
	f := &fixture{
		bookings: repo,
		clock:    clock.NewFake(at(8, 0)),
		sink:     &recordingSink{},
		queue:    &mockRetryQueue{},
		cfg:      config.Defaults(),
	}
	f.engine = NewEngine(repo, lock.NewMemoryLocker(), f.clock, f.sink, f.queue, f.cfg)
	return f
}

func (f *fixture) seed(t *testing.T, bookings ...*model.Booking) {
	t.Helper()
	for _, b := range bookings {
		if err := f.bookings.Create(context.Background(), b); err != nil {
			t.Fatalf("seed booking: %v", err)
		}
	}
}

func (f *fixture) get(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := f.bookings.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return b
}

func booking(id, userID, facilityID string, start, end time.Time, status model.Status) *model.Booking {
	return &model.Booking{
		ID:           id,
		UserID:       userID,
		FacilityID:   facilityID,
		Purpose:      "meeting",
		Start:        start,
		End:          end,
		Participants: 2,
		Status:       status,
		CreatedAt:    at(7, 0),
		UpdatedAt:    at(7, 0),
	}
}

func approved(id, userID, facilityID string, start, end time.Time) *model.Booking {
	b := booking(id, userID, facilityID, start, end, model.StatusApproved)
	deadline := start.Add(15 * time.Minute)
	b.ArrivalDeadline = &deadline
	return b
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestApprove_CascadeScenario(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
		booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending),
		booking("c", "carol", "room-a", at(12, 0), at(13, 0), model.StatusPending),
		booking("d", "alice", "room-b", at(14, 0), at(15, 0), model.StatusPending),
	)

	result, err := f.engine.Approve(context.Background(), "a", "enjoy", admin)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if result.Booking.Status != model.StatusApproved {
		t.Errorf("status = %s, want approved", result.Booking.Status)
	}
	if result.Booking.ArrivalDeadline == nil || !result.Booking.ArrivalDeadline.Equal(at(10, 15)) {
		t.Errorf("arrival deadline = %v, want 10:15", result.Booking.ArrivalDeadline)
	}
	if len(result.CascadedDenials) != 2 || len(result.CascadeFailures) != 0 {
		t.Fatalf("cascade = %d denials, %d failures; want 2, 0", len(result.CascadedDenials), len(result.CascadeFailures))
	}

	tests := []struct {
		id         string
		wantStatus model.Status
		wantReason string
	}{
		{id: "b", wantStatus: model.StatusDenied, wantReason: model.ReasonSlotTaken},
		{id: "c", wantStatus: model.StatusPending},
		{id: "d", wantStatus: model.StatusDenied, wantReason: model.ReasonOtherBookingApproved},
	}
	for _, tt := range tests {
		got := f.get(t, tt.id)
		if got.Status != tt.wantStatus || got.StatusReason != tt.wantReason {
			t.Errorf("booking %s = %s/%q, want %s/%q", tt.id, got.Status, got.StatusReason, tt.wantStatus, tt.wantReason)
		}
	}

	if n, ok := f.sink.find(notify.KindBookingAutoDenied, "b"); !ok || n.RecipientID != "bob" || n.Message != MessageSlotTaken {
		t.Errorf("expected slot_taken notice to bob, got %+v (found=%v)", n, ok)
	}
	if n, ok := f.sink.find(notify.KindBookingAutoDenied, "d"); !ok || n.Message != MessageOtherBookingApproved {
		t.Errorf("expected other_booking_approved notice for d, got %+v (found=%v)", n, ok)
	}
	if _, ok := f.sink.find(notify.KindBookingApproved, "a"); !ok {
		t.Error("expected approval notice")
	}
}

func TestApprove_UserCascadeDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.CascadeDenyUserPending = false
	f.seed(t,
		booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
		booking("d", "alice", "room-b", at(14, 0), at(15, 0), model.StatusPending),
	)

	if _, err := f.engine.Approve(context.Background(), "a", "", admin); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, "d"); got.Status != model.StatusPending {
		t.Errorf("expected other pending booking to stay pending, got %s", got.Status)
	}
}

func TestApprove_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending))

	first, err := f.engine.Approve(context.Background(), "a", "", admin)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Approve(context.Background(), "a", "", admin)
	if err != nil {
		t.Fatalf("second Approve() error = %v", err)
	}
	if !second.Booking.UpdatedAt.Equal(first.Booking.UpdatedAt) {
		t.Error("second approval should not write")
	}
	if len(second.CascadedDenials) != 0 {
		t.Error("second approval should not cascade")
	}
}

func TestApprove_Failures(t *testing.T) {
	tests := []struct {
		name     string
		seed     []*model.Booking
		id       string
		actor    model.Actor
		wantCode string
	}{
		{
			name:     "member cannot approve",
			seed:     []*model.Booking{booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending)},
			id:       "a",
			actor:    alice,
			wantCode: apperrors.CodeForbidden,
		},
		{
			name:     "unknown booking",
			id:       "missing",
			actor:    admin,
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "denied booking",
			seed:     []*model.Booking{booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusDenied)},
			id:       "a",
			actor:    admin,
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name: "slot already approved for someone else",
			seed: []*model.Booking{
				approved("x", "bob", "room-a", at(10, 30), at(11, 30)),
				booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
			},
			id:       "a",
			actor:    admin,
			wantCode: apperrors.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, tt.seed...)
			_, err := f.engine.Approve(context.Background(), tt.id, "", tt.actor)
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestApprove_ConcurrentApprovalsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	const n = 8
	for i := 0; i < n; i++ {
		start := at(10, 0).Add(time.Duration(i) * 10 * time.Minute)
		f.seed(t, booking(fmt.Sprintf("b%d", i), fmt.Sprintf("user-%d", i), "room-a", start, start.Add(time.Hour), model.StatusPending))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = f.engine.Approve(context.Background(), id, "", admin)
		}(fmt.Sprintf("b%d", i))
	}
	wg.Wait()

	all, err := f.bookings.FindOverlapping(context.Background(), "room-a", at(0, 0), at(23, 59), model.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) == 0 {
		t.Fatal("expected at least one approval")
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if all[i].Overlaps(all[j].Start, all[j].End) {
				t.Errorf("approved bookings %s and %s overlap", all[i].ID, all[j].ID)
			}
		}
	}
}

func TestApprove_CascadeFailureIsEnqueued(t *testing.T) {
	repo := &flakyRepository{
		BookingRepository: repository.NewMemoryBookingRepository(),
		failFor:           map[string]bool{"b": true},
		attempts:          map[string]int{},
	}
	f := newFixtureWithRepo(t, repo)
	f.seed(t,
		booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
		booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending),
	)

	result, err := f.engine.Approve(context.Background(), "a", "", admin)
	if err != nil {
		t.Fatalf("approval must not fail because of the cascade: %v", err)
	}
	if result.Booking.Status != model.StatusApproved {
		t.Errorf("status = %s", result.Booking.Status)
	}
	if len(result.CascadeFailures) != 1 || result.CascadeFailures[0].BookingID != "b" || !result.CascadeFailures[0].Enqueued {
		t.Fatalf("cascade failures = %+v", result.CascadeFailures)
	}
	if repo.attempts["b"] != f.cfg.CascadeRetryAttempts {
		t.Errorf("attempts = %d, want %d", repo.attempts["b"], f.cfg.CascadeRetryAttempts)
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].Reason != model.ReasonSlotTaken || f.queue.tasks[0].ApprovedBookingID != "a" {
		t.Fatalf("queued tasks = %+v", f.queue.tasks)
	}

	// the store recovers and the worker replays the task
	repo.mu.Lock()
	repo.failFor = map[string]bool{}
	repo.mu.Unlock()

	denials, err := f.engine.ApplyCascadeTask(context.Background(), f.queue.tasks[0])
	if err != nil {
		t.Fatalf("ApplyCascadeTask() error = %v", err)
	}
	if len(denials) != 1 || denials[0].Status != model.StatusDenied || denials[0].StatusReason != model.ReasonSlotTaken {
		t.Errorf("denials = %+v", denials)
	}
}

func TestApprove_CascadeSurvivesRequestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &requestScopedRepository{BookingRepository: repository.NewMemoryBookingRepository(), cancel: cancel}
	f := newFixtureWithRepo(t, repo)
	f.seed(t,
		booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
		booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending),
	)

	result, err := f.engine.Approve(ctx, "a", "", admin)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("request context should be cancelled after the approval write")
	}
	if len(result.CascadeFailures) != 0 {
		t.Fatalf("cascade failures = %+v", result.CascadeFailures)
	}
	if got := f.get(t, "b"); got.Status != model.StatusDenied || got.StatusReason != model.ReasonSlotTaken {
		t.Errorf("b = %s/%s, want denied/%s", got.Status, got.StatusReason, model.ReasonSlotTaken)
	}
}

func TestApprove_CascadeLookupFailureIsEnqueued(t *testing.T) {
	repo := &requestScopedRepository{BookingRepository: repository.NewMemoryBookingRepository(), failPendingLookup: true}
	f := newFixtureWithRepo(t, repo)
	f.seed(t,
		booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
		booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending),
		booking("c", "alice", "room-b", at(14, 0), at(15, 0), model.StatusPending),
	)

	result, err := f.engine.Approve(context.Background(), "a", "", admin)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if len(result.CascadeFailures) != 1 {
		t.Fatalf("cascade failures = %+v", result.CascadeFailures)
	}
	failure := result.CascadeFailures[0]
	if failure.BookingID != "" || failure.Reason != reasonCascadeLookup || !failure.Enqueued {
		t.Errorf("failure = %+v", failure)
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].BookingID != "" || f.queue.tasks[0].ApprovedBookingID != "a" {
		t.Fatalf("queued tasks = %+v", f.queue.tasks)
	}
	if got := f.get(t, "b"); got.Status != model.StatusPending {
		t.Fatalf("b = %s before replay, want pending", got.Status)
	}

	repo.mu.Lock()
	repo.failPendingLookup = false
	repo.mu.Unlock()

	denials, err := f.engine.ApplyCascadeTask(context.Background(), f.queue.tasks[0])
	if err != nil {
		t.Fatalf("ApplyCascadeTask() error = %v", err)
	}
	if len(denials) != 2 {
		t.Fatalf("denials = %d, want 2", len(denials))
	}
	tests := []struct {
		id     string
		reason string
	}{
		{id: "b", reason: model.ReasonSlotTaken},
		{id: "c", reason: model.ReasonOtherBookingApproved},
	}
	for _, tt := range tests {
		got := f.get(t, tt.id)
		if got.Status != model.StatusDenied || got.StatusReason != tt.reason {
			t.Errorf("%s = %s/%s, want denied/%s", tt.id, got.Status, got.StatusReason, tt.reason)
		}
		if _, ok := f.sink.find(notify.KindBookingAutoDenied, tt.id); !ok {
			t.Errorf("no auto-denied notice for %s", tt.id)
		}
	}

	// replaying the same task is a no-op
	denials, err = f.engine.ApplyCascadeTask(context.Background(), f.queue.tasks[0])
	if err != nil || len(denials) != 0 {
		t.Errorf("replay = %v, %v", denials, err)
	}
}

func TestApplyCascadeTask_SkipsWhenApprovalWithdrawn(t *testing.T) {
	f := newFixture(t)
	cancelled := approved("a", "alice", "room-a", at(10, 0), at(11, 0))
	cancelled.Status = model.StatusCancelled
	f.seed(t, cancelled, booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending))

	denials, err := f.engine.ApplyCascadeTask(context.Background(), CascadeTask{
		BookingID: "b", ApprovedBookingID: "a", Reason: model.ReasonSlotTaken, Message: MessageSlotTaken,
	})
	if err != nil || len(denials) != 0 {
		t.Fatalf("expected skip, got %v, %v", denials, err)
	}
	if got := f.get(t, "b"); got.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestHandleCascadeMessage(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		approved("a", "alice", "room-a", at(10, 0), at(11, 0)),
		booking("b", "bob", "room-a", at(10, 30), at(11, 30), model.StatusPending),
	)

	msg, err := kafka.NewMessage().
		WithKey("a").
		WithValue(CascadeTask{BookingID: "b", ApprovedBookingID: "a", Reason: model.ReasonSlotTaken, Message: MessageSlotTaken}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.HandleCascadeMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleCascadeMessage() error = %v", err)
	}
	if got := f.get(t, "b"); got.Status != model.StatusDenied {
		t.Errorf("status = %s, want denied", got.Status)
	}

	err = f.engine.HandleCascadeMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Errorf("garbage payload should be permanent, got %v", err)
	}
}

func TestDeny(t *testing.T) {
	tests := []struct {
		name       string
		status     model.Status
		actor      model.Actor
		wantCode   string
		wantStatus model.Status
	}{
		{name: "pending is denied", status: model.StatusPending, actor: admin, wantStatus: model.StatusDenied},
		{name: "denied is a no-op", status: model.StatusDenied, actor: admin, wantStatus: model.StatusDenied},
		{name: "cancelled is a no-op", status: model.StatusCancelled, actor: admin, wantStatus: model.StatusCancelled},
		{name: "approved cannot be denied", status: model.StatusApproved, actor: admin, wantCode: apperrors.CodeInvalidState},
		{name: "member cannot deny", status: model.StatusPending, actor: alice, wantCode: apperrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, booking("a", "alice", "room-a", at(10, 0), at(11, 0), tt.status))

			got, err := f.engine.Deny(context.Background(), "a", "room needed for exams", tt.actor)
			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Deny() error = %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestDeny_NotifiesOwner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending))

	if _, err := f.engine.Deny(context.Background(), "a", "room needed for exams", admin); err != nil {
		t.Fatal(err)
	}
	n, ok := f.sink.find(notify.KindBookingDenied, "a")
	if !ok || n.RecipientID != "alice" || n.Message != "room needed for exams" {
		t.Errorf("notice = %+v (found=%v)", n, ok)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name       string
		booking    *model.Booking
		now        time.Time
		actor      model.Actor
		wantCode   string
		wantStatus model.Status
		wantReason string
		wantEnd    time.Time
	}{
		{
			name:       "pending before start",
			booking:    booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
			now:        at(9, 0),
			actor:      alice,
			wantStatus: model.StatusCancelled,
			wantReason: model.ReasonCancelledBeforeStart,
			wantEnd:    at(11, 0),
		},
		{
			name:       "pending after start",
			booking:    booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
			now:        at(10, 10),
			actor:      alice,
			wantStatus: model.StatusCancelled,
			wantReason: model.ReasonWithdrawn,
			wantEnd:    at(11, 0),
		},
		{
			name:       "approved before start",
			booking:    approved("a", "alice", "room-a", at(10, 0), at(11, 0)),
			now:        at(9, 0),
			actor:      alice,
			wantStatus: model.StatusCancelled,
			wantReason: model.ReasonCancelledBeforeStart,
			wantEnd:    at(11, 0),
		},
		{
			name:       "approved in progress ends early",
			booking:    approved("a", "alice", "room-a", at(10, 0), at(11, 0)),
			now:        at(10, 20),
			actor:      alice,
			wantStatus: model.StatusCancelled,
			wantReason: model.ReasonEndedEarly,
			wantEnd:    at(10, 20),
		},
		{
			name:     "approved already ended",
			booking:  approved("a", "alice", "room-a", at(10, 0), at(11, 0)),
			now:      at(11, 30),
			actor:    alice,
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:       "already cancelled is a no-op",
			booking:    booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusCancelled),
			now:        at(9, 0),
			actor:      alice,
			wantStatus: model.StatusCancelled,
			wantEnd:    at(11, 0),
		},
		{
			name:     "someone else's booking",
			booking:  booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
			now:      at(9, 0),
			actor:    bob,
			wantCode: apperrors.CodeForbidden,
		},
		{
			name:       "admin may cancel any booking",
			booking:    booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending),
			now:        at(9, 0),
			actor:      admin,
			wantStatus: model.StatusCancelled,
			wantReason: model.ReasonCancelledBeforeStart,
			wantEnd:    at(11, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.clock.Set(tt.now)
			f.seed(t, tt.booking)

			got, err := f.engine.Cancel(context.Background(), "a", "plans changed", tt.actor)
			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}
			if got.Status != tt.wantStatus || got.StatusReason != tt.wantReason {
				t.Errorf("got %s/%q, want %s/%q", got.Status, got.StatusReason, tt.wantStatus, tt.wantReason)
			}
			if !got.End.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", got.End, tt.wantEnd)
			}
		})
	}
}

func TestCancel_AdminNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, booking("a", "alice", "room-a", at(10, 0), at(11, 0), model.StatusPending))

	if _, err := f.engine.Cancel(context.Background(), "a", "maintenance", admin); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.sink.find(notify.KindBookingCancelled, "a"); !ok {
		t.Error("expected cancellation notice to owner")
	}
}

func TestArrivalTimeoutScenario(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		booking("late", "alice", "room-a", at(9, 0), at(10, 0), model.StatusPending),
		booking("ontime", "bob", "room-b", at(9, 0), at(10, 0), model.StatusPending),
	)
	ctx := context.Background()

	for _, id := range []string{"late", "ontime"} {
		if _, err := f.engine.Approve(ctx, id, "", admin); err != nil {
			t.Fatalf("Approve(%s): %v", id, err)
		}
	}

	f.clock.Set(at(9, 5))
	if _, err := f.engine.ConfirmArrival(ctx, "ontime", admin); err != nil {
		t.Fatalf("ConfirmArrival() error = %v", err)
	}

	f.clock.Set(at(9, 10))
	swept, err := f.engine.SweepArrivals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 0 {
		t.Fatalf("nothing is overdue at 09:10, swept %d", len(swept))
	}

	f.clock.Set(at(9, 16))
	swept, err = f.engine.SweepArrivals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 1 || swept[0].ID != "late" {
		t.Fatalf("swept = %v, want only late", swept)
	}
	if got := f.get(t, "late"); got.Status != model.StatusCancelled || got.StatusReason != model.ReasonArrivalTimeout {
		t.Errorf("late = %s/%s", got.Status, got.StatusReason)
	}
	if got := f.get(t, "ontime"); got.Status != model.StatusApproved {
		t.Errorf("confirmed booking must stay approved, got %s", got.Status)
	}
	if n, ok := f.sink.find(notify.KindArrivalTimeout, "late"); !ok || n.Message != MessageArrivalTimeout {
		t.Errorf("expected arrival timeout notice, got %+v", n)
	}

	swept, _ = f.engine.SweepArrivals(ctx)
	if len(swept) != 0 {
		t.Error("a second sweep must not cancel again")
	}
}

func TestConfirmArrival(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		approved("a", "alice", "room-a", at(9, 0), at(10, 0)),
		booking("p", "bob", "room-b", at(9, 0), at(10, 0), model.StatusPending),
	)
	ctx := context.Background()

	if _, err := f.engine.ConfirmArrival(ctx, "a", alice); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("member confirm: got %v", err)
	}
	if _, err := f.engine.ConfirmArrival(ctx, "p", admin); !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Errorf("pending confirm: got %v", err)
	}

	f.clock.Set(at(9, 5))
	first, err := f.engine.ConfirmArrival(ctx, "a", admin)
	if err != nil {
		t.Fatal(err)
	}
	if !first.ArrivalConfirmed || first.ArrivalConfirmedAt == nil || !first.ArrivalConfirmedAt.Equal(at(9, 5)) {
		t.Errorf("confirmation not recorded: %+v", first)
	}

	f.clock.Set(at(9, 7))
	second, err := f.engine.ConfirmArrival(ctx, "a", admin)
	if err != nil {
		t.Fatal(err)
	}
	if !second.ArrivalConfirmedAt.Equal(at(9, 5)) {
		t.Error("second confirmation must not overwrite the first")
	}
}

func TestConfirmArrival_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.seed(t, approved("a", "alice", "room-a", at(9, 0), at(10, 0)))
	f.clock.Set(at(9, 20))

	_, err := f.engine.ConfirmArrival(context.Background(), "a", admin)
	if !apperrors.HasReason(err, model.ReasonArrivalTimeout) {
		t.Fatalf("expected arrival_timeout, got %v", err)
	}
	if got := f.get(t, "a"); got.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}
