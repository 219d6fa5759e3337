package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacebook/internal/bookings/admission"
	bookingrepo "spacebook/internal/bookings/repository"
	"spacebook/internal/bookings/validator"
	facilityerrors "spacebook/internal/facilities/errors"
	facilityrepo "spacebook/internal/facilities/repository"
	holdserrors "spacebook/internal/holds/errors"
	"spacebook/internal/holds/repository"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/model"
	"spacebook/pkg/sanitizer"
	"spacebook/pkg/timewindow"

	"github.com/google/uuid"
)

// HoldService reserves a window for a short time while the user fills in
// the booking form. Holds are advisory: admission never consults them.
type HoldService interface {
	Acquire(ctx context.Context, actor model.Actor, req *model.HoldRequest) (*model.SlotHold, error)
	Refresh(ctx context.Context, actor model.Actor, holdID string) (*model.SlotHold, error)
	Release(ctx context.Context, holdID, userID string) error
	ListLive(ctx context.Context, facilityID string) ([]*model.SlotHold, error)
}

type holdService struct {
	store      repository.HoldStore
	facilities facilityrepo.FacilityRepository
	bookings   bookingrepo.BookingRepository
	validator  *validator.BookingValidator
	clock      clock.Clock
	cfg        *config.Config
}

func NewHoldService(
	store repository.HoldStore,
	facilities facilityrepo.FacilityRepository,
	bookings bookingrepo.BookingRepository,
	validator *validator.BookingValidator,
	clk clock.Clock,
	cfg *config.Config,
) HoldService {
	return &holdService{
		store:      store,
		facilities: facilities,
		bookings:   bookings,
		validator:  validator,
		clock:      clk,
		cfg:        cfg,
	}
}

func (s *holdService) Acquire(ctx context.Context, actor model.Actor, req *model.HoldRequest) (*model.SlotHold, error) {
	req.FacilityID = sanitizer.SanitizeID(req.FacilityID)
	req.HoldID = sanitizer.SanitizeID(req.HoldID)
	if err := s.validator.ValidateHold(req); err != nil {
		s.cfg.Log.Warn("Hold validation failed", "facility_id", req.FacilityID, "user_id", actor.UserID, "error", err)
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return nil, apperrors.Validation("Hold validation failed", map[string]any{"fields": fieldErrs})
		}
		return nil, apperrors.Validation("Hold validation failed", map[string]any{"error": err.Error()})
	}

	start, end := req.Start.UTC(), req.End.UTC()
	if err := s.checkWindow(start, end); err != nil {
		return nil, err
	}
	if _, err := s.facilities.FindByID(ctx, req.FacilityID); err != nil {
		if errors.Is(err, facilityerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Facility", req.FacilityID).WithReason(admission.ReasonFacilityNotFound)
		}
		return nil, apperrors.Unavailable("Facility store", err)
	}

	now := s.clock.Now().UTC()
	candidate := &model.SlotHold{
		ID:         uuid.NewString(),
		FacilityID: req.FacilityID,
		UserID:     actor.UserID,
		Start:      start,
		End:        end,
		ExpiresAt:  now.Add(s.cfg.HoldTTL),
		CreatedAt:  now,
	}

	hold, err := s.store.Acquire(ctx, candidate, req.HoldID, now)
	if err != nil {
		if errors.Is(err, holdserrors.ErrHoldConflict) {
			return nil, s.conflict(ctx, candidate, hold)
		}
		s.cfg.Log.Error("Failed to acquire slot hold", "facility_id", req.FacilityID, "error", err)
		return nil, apperrors.Unavailable("Hold store", err)
	}

	s.cfg.Log.Info("Slot hold acquired",
		"id", hold.ID,
		"facility_id", hold.FacilityID,
		"user_id", hold.UserID,
		"start", hold.Start,
		"end", hold.End,
		"expires_at", hold.ExpiresAt,
		"refreshed", hold.ID != candidate.ID,
	)
	return hold, nil
}

func (s *holdService) Refresh(ctx context.Context, actor model.Actor, holdID string) (*model.SlotHold, error) {
	holdID = sanitizer.SanitizeID(holdID)
	if holdID == "" {
		return nil, apperrors.InvalidInput("Hold ID cannot be empty")
	}

	now := s.clock.Now().UTC()
	hold, err := s.store.Extend(ctx, holdID, actor.UserID, now.Add(s.cfg.HoldTTL), now)
	if err != nil {
		switch {
		case errors.Is(err, holdserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Slot hold", holdID)
		case errors.Is(err, holdserrors.ErrNotOwner):
			return nil, apperrors.Forbidden("You can only refresh your own holds")
		}
		s.cfg.Log.Error("Failed to refresh slot hold", "id", holdID, "error", err)
		return nil, apperrors.Unavailable("Hold store", err)
	}

	s.cfg.Log.Debug("Slot hold refreshed", "id", hold.ID, "expires_at", hold.ExpiresAt)
	return hold, nil
}

func (s *holdService) Release(ctx context.Context, holdID, userID string) error {
	holdID = sanitizer.SanitizeID(holdID)
	if holdID == "" {
		return apperrors.InvalidInput("Hold ID cannot be empty")
	}

	if err := s.store.Delete(ctx, holdID, userID, s.clock.Now().UTC()); err != nil {
		if errors.Is(err, holdserrors.ErrNotOwner) {
			return apperrors.Forbidden("You can only release your own holds")
		}
		s.cfg.Log.Error("Failed to release slot hold", "id", holdID, "error", err)
		return apperrors.Unavailable("Hold store", err)
	}

	s.cfg.Log.Debug("Slot hold released", "id", holdID, "user_id", userID)
	return nil
}

func (s *holdService) ListLive(ctx context.Context, facilityID string) ([]*model.SlotHold, error) {
	holds, err := s.store.ListLive(ctx, facilityID, s.clock.Now().UTC())
	if err != nil {
		s.cfg.Log.Error("Failed to list slot holds", "facility_id", facilityID, "error", err)
		return nil, apperrors.Unavailable("Hold store", err)
	}
	return holds, nil
}

func (s *holdService) checkWindow(start, end time.Time) error {
	loc := s.cfg.Location
	window := map[string]any{"start": start, "end": end}

	if !timewindow.SameDay(start, end, loc) {
		return apperrors.Validation("A hold must start and end on the same day", window).
			WithReason(admission.ReasonNotSameDay)
	}
	if !s.cfg.Hours.Contains(start, end, loc) {
		return apperrors.Validation(
			fmt.Sprintf("Holds must fall within operating hours %s", s.cfg.Hours),
			map[string]any{
				"start":           start,
				"end":             end,
				"operating_hours": s.cfg.Hours.String(),
				"time_zone":       loc.String(),
			},
		).WithReason(admission.ReasonOutsideOperatingHours)
	}
	return nil
}

// conflict explains a rejected hold with the blocking hold's expiry and the
// approved bookings that would reject a booking of the same window anyway.
func (s *holdService) conflict(ctx context.Context, candidate, blocking *model.SlotHold) error {
	appErr := apperrors.Conflict("The requested time is held by another user").
		WithReason(admission.ReasonHoldConflict).
		WithDetail("facility_id", candidate.FacilityID).
		WithDetail("expires_at", blocking.ExpiresAt)

	approved, err := s.bookings.FindOverlapping(ctx, candidate.FacilityID, candidate.Start, candidate.End, model.StatusApproved)
	if err != nil {
		s.cfg.Log.Warn("Failed to load conflicting bookings for hold conflict", "facility_id", candidate.FacilityID, "error", err)
		approved = nil
	}
	appErr.WithDetail("conflicting_bookings", model.Summaries(approved))

	s.cfg.Log.Info("Slot hold rejected",
		"facility_id", candidate.FacilityID,
		"user_id", candidate.UserID,
		"held_by", blocking.UserID,
		"expires_at", blocking.ExpiresAt,
	)
	return appErr
}
