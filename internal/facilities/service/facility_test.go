package service

import (
	"context"
	"errors"
	"spacebook/internal/facilities/repository"
	"spacebook/internal/facilities/validator"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/lock"
	"spacebook/pkg/model"
	"testing"
	"time"
)

var (
	admin  = model.Actor{UserID: "admin-1", Roles: []model.Role{model.RoleAdmin}}
	member = model.Actor{UserID: "user-1", Roles: []model.Role{model.RoleMember}}
)

func newTestService(t *testing.T) (FacilityService, repository.FacilityRepository) {
	t.Helper()
	cfg := config.Defaults()
	repo := repository.NewMemoryFacilityRepository()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := NewFacilityService(repo, validator.NewFacilityValidator(cfg.Log), lock.NewMemoryLocker(), clk, cfg)
	return svc, repo
}

func createFacility(t *testing.T, svc FacilityService, name string) *model.Facility {
	t.Helper()
	f := &model.Facility{Name: name, Category: "Meeting Room", Capacity: 8, Active: true}
	if err := svc.Create(context.Background(), admin, f); err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	return f
}

func TestCreate_AssignsIDAndSanitizes(t *testing.T) {
	svc, repo := newTestService(t)

	f := &model.Facility{Name: "  Room   A ", Category: "Meeting Room", Capacity: 6, Active: true}
	if err := svc.Create(context.Background(), admin, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}
	if f.Name != "Room A" {
		t.Errorf("Name = %q, want %q", f.Name, "Room A")
	}
	if f.Category != "meeting_room" {
		t.Errorf("Category = %q, want %q", f.Category, "meeting_room")
	}

	stored, err := repo.FindByID(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.CreatedAt.IsZero() || !stored.CreatedAt.Equal(stored.UpdatedAt) {
		t.Errorf("timestamps not set: created %v updated %v", stored.CreatedAt, stored.UpdatedAt)
	}
}

func TestCreate_RequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Create(context.Background(), member, &model.Facility{Name: "Room A", Capacity: 4})
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestCreate_ValidationAndConflict(t *testing.T) {
	svc, _ := newTestService(t)
	createFacility(t, svc, "Room A")

	tests := []struct {
		name     string
		facility *model.Facility
		wantCode string
	}{
		{name: "missing name", facility: &model.Facility{Capacity: 4}, wantCode: apperrors.CodeValidation},
		{name: "zero capacity", facility: &model.Facility{Name: "Room B"}, wantCode: apperrors.CodeValidation},
		{name: "unknown role", facility: &model.Facility{Name: "Room C", Capacity: 2, AllowedRoles: []model.Role{"guest"}}, wantCode: apperrors.CodeValidation},
		{name: "duplicate name ignoring case", facility: &model.Facility{Name: "room a", Capacity: 4}, wantCode: apperrors.CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(context.Background(), admin, tt.facility)
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByID(context.Background(), "missing")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	_, err = svc.GetByID(context.Background(), "")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestUpdate_AppliesPartialChanges(t *testing.T) {
	svc, _ := newTestService(t)
	f := createFacility(t, svc, "Room A")

	capacity := 20
	inactive := false
	updated, err := svc.Update(context.Background(), admin, f.ID, &model.FacilityUpdate{
		Capacity: &capacity,
		Active:   &inactive,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Capacity != 20 || updated.Active {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.Name != "Room A" {
		t.Errorf("name changed unexpectedly: %q", updated.Name)
	}

	got, _ := svc.GetByID(context.Background(), f.ID)
	if got.Capacity != 20 {
		t.Errorf("update not persisted, capacity = %d", got.Capacity)
	}
}

func TestUpdate_RenameConflict(t *testing.T) {
	svc, _ := newTestService(t)
	createFacility(t, svc, "Room A")
	b := createFacility(t, svc, "Room B")

	name := "ROOM A"
	_, err := svc.Update(context.Background(), admin, b.ID, &model.FacilityUpdate{Name: &name})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestUpdate_Forbidden(t *testing.T) {
	svc, _ := newTestService(t)
	f := createFacility(t, svc, "Room A")

	capacity := 2
	_, err := svc.Update(context.Background(), member, f.ID, &model.FacilityUpdate{Capacity: &capacity})
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestMarkAndClearUnavailable(t *testing.T) {
	svc, _ := newTestService(t)
	f := createFacility(t, svc, "Room A")
	ctx := context.Background()

	got, err := svc.MarkUnavailable(ctx, admin, f.ID, model.DateRange{From: "2026-04-01", To: "2026-04-05", Reason: "Renovation"})
	if err != nil {
		t.Fatalf("MarkUnavailable: %v", err)
	}
	got, err = svc.MarkUnavailable(ctx, admin, f.ID, model.DateRange{From: "2026-04-06", To: "2026-04-07", Reason: "Renovation"})
	if err != nil {
		t.Fatalf("MarkUnavailable: %v", err)
	}
	if len(got.Unavailable) != 1 || got.Unavailable[0].To != "2026-04-07" {
		t.Fatalf("adjacent ranges should merge, got %+v", got.Unavailable)
	}

	if reason, closed := got.ClosedOn("2026-04-03"); !closed || reason != "Renovation" {
		t.Errorf("ClosedOn(2026-04-03) = %q, %v", reason, closed)
	}

	got, err = svc.ClearUnavailable(ctx, admin, f.ID, model.DateRange{From: "2026-04-03", To: "2026-04-03"})
	if err != nil {
		t.Fatalf("ClearUnavailable: %v", err)
	}
	if len(got.Unavailable) != 2 {
		t.Fatalf("clearing a middle day should split the range, got %+v", got.Unavailable)
	}
	if _, closed := got.ClosedOn("2026-04-03"); closed {
		t.Error("2026-04-03 should be bookable after clearing")
	}
	if _, closed := got.ClosedOn("2026-04-04"); !closed {
		t.Error("2026-04-04 should still be closed")
	}
}

func TestMarkUnavailable_InvalidRange(t *testing.T) {
	svc, _ := newTestService(t)
	f := createFacility(t, svc, "Room A")

	tests := []struct {
		name string
		r    model.DateRange
	}{
		{name: "to before from", r: model.DateRange{From: "2026-04-05", To: "2026-04-01"}},
		{name: "bad format", r: model.DateRange{From: "04/01/2026", To: "2026-04-05"}},
		{name: "missing to", r: model.DateRange{From: "2026-04-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MarkUnavailable(context.Background(), admin, f.ID, tt.r)
			if !apperrors.HasCode(err, apperrors.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestMarkUnavailable_UnknownFacility(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.MarkUnavailable(context.Background(), admin, "missing", model.DateRange{From: "2026-04-01", To: "2026-04-01"})
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

type mockFacilityRepository struct {
	repository.FacilityRepository
	findAllFunc func(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error)
	countFunc   func(ctx context.Context, activeOnly bool) (int64, error)
}

func (m *mockFacilityRepository) FindAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error) {
	return m.findAllFunc(ctx, activeOnly, limit, offset)
}

func (m *mockFacilityRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	return m.countFunc(ctx, activeOnly)
}

func TestGetAll_ConcurrentCountAndFind(t *testing.T) {
	cfg := config.Defaults()
	var gotLimit int
	repo := &mockFacilityRepository{
		countFunc: func(ctx context.Context, activeOnly bool) (int64, error) {
			time.Sleep(10 * time.Millisecond)
			return 42, nil
		},
		findAllFunc: func(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error) {
			gotLimit = limit
			time.Sleep(10 * time.Millisecond)
			return []*model.Facility{{ID: "1"}, {ID: "2"}}, nil
		},
	}
	svc := NewFacilityService(repo, validator.NewFacilityValidator(cfg.Log), lock.NewMemoryLocker(), clock.Real(), cfg)

	list, count, err := svc.GetAll(context.Background(), true, 0, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 || len(list) != 2 {
		t.Errorf("got count %d and %d items", count, len(list))
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
}

func TestGetAll_StoreFailure(t *testing.T) {
	cfg := config.Defaults()
	repo := &mockFacilityRepository{
		countFunc: func(ctx context.Context, activeOnly bool) (int64, error) {
			return 0, errors.New("connection reset")
		},
		findAllFunc: func(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, error) {
			return nil, nil
		},
	}
	svc := NewFacilityService(repo, validator.NewFacilityValidator(cfg.Log), lock.NewMemoryLocker(), clock.Real(), cfg)

	_, _, err := svc.GetAll(context.Background(), false, 10, 0)
	if !apperrors.HasCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}
