package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"spacebook/internal/bookings/admission"
	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/bookings/lifecycle"
	"spacebook/internal/bookings/repository"
	"spacebook/internal/bookings/validator"
	"spacebook/internal/notify"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/lock"
	"spacebook/pkg/model"
	"spacebook/pkg/sanitizer"

	"github.com/google/uuid"
)

type BookingService interface {
	Create(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*CreateResult, error)
	GetByID(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	List(ctx context.Context, actor model.Actor, query ListQuery, limit int, offset int64) ([]*model.Booking, int64, error)
	Update(ctx context.Context, actor model.Actor, id string, updates *model.BookingUpdate) (*model.Booking, error)

	Approve(ctx context.Context, actor model.Actor, id, adminResponse string) (*lifecycle.ApproveResult, error)
	Deny(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error)
	Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error)
	ConfirmArrival(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
}

type CreateResult struct {
	Booking        *model.Booking   `json:"booking"`
	ForceCancelled []*model.Booking `json:"force_cancelled"`
}

// ListQuery narrows a booking listing. Members always see only their own
// bookings.
type ListQuery struct {
	UserID     string
	FacilityID string
	Statuses   []model.Status
	From       *time.Time
	To         *time.Time
}

// HoldReleaser drops the slot hold a booking request was made under.
type HoldReleaser interface {
	Release(ctx context.Context, holdID, userID string) error
}

type bookingService struct {
	repo      repository.BookingRepository
	resolver  *admission.Resolver
	engine    *lifecycle.Engine
	validator *validator.BookingValidator
	locker    lock.Locker
	holds     HoldReleaser
	notices   lifecycle.NoticeSink
	clock     clock.Clock
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	resolver *admission.Resolver,
	engine *lifecycle.Engine,
	validator *validator.BookingValidator,
	locker lock.Locker,
	holds HoldReleaser,
	notices lifecycle.NoticeSink,
	clk clock.Clock,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		resolver:  resolver,
		engine:    engine,
		validator: validator,
		locker:    locker,
		holds:     holds,
		notices:   notices,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *bookingService) Create(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*CreateResult, error) {
	s.sanitizeRequest(req)
	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "facility_id", req.FacilityID, "user_id", actor.UserID, "error", err)
		return nil, validationError(err)
	}

	now := s.clock.Now().UTC()
	booking := &model.Booking{
		ID:           uuid.NewString(),
		FacilityID:   req.FacilityID,
		UserID:       actor.UserID,
		Purpose:      req.Purpose,
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
		Participants: req.Participants,
		Equipment:    req.Equipment,
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	unlock, err := s.lock(ctx, booking)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var admitted *admission.Admission
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		a, err := s.resolver.Admit(txCtx, admission.Candidate{Booking: booking, Actor: actor}, admission.Options{
			ForceCancelConflicts: req.ForceCancelConflicts,
		})
		if err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, booking); err != nil {
			if errors.Is(err, bookingserrors.ErrDuplicateID) {
				return apperrors.Conflict("A booking with this ID already exists").WithDetail("id", booking.ID)
			}
			return apperrors.Unavailable("Booking store", err)
		}
		admitted = a
		return nil
	})
	if err != nil {
		s.logRejection("Create", booking, err)
		return nil, translateStoreError(err)
	}

	s.releaseHold(ctx, req.HoldID, actor.UserID)
	for _, cancelled := range admitted.ForceCancelled {
		s.dispatch(notify.Notice{
			Kind:        notify.KindBookingForceCancelled,
			RecipientID: cancelled.UserID,
			BookingID:   cancelled.ID,
			FacilityID:  cancelled.FacilityID,
			Reason:      model.ReasonForceCancelled,
			Message:     admission.ForceCancelMessage,
			OccurredAt:  now,
		})
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"facility_id", booking.FacilityID,
		"user_id", booking.UserID,
		"start", booking.Start,
		"end", booking.End,
		"force_cancelled", len(admitted.ForceCancelled),
	)
	return &CreateResult{Booking: booking, ForceCancelled: admitted.ForceCancelled}, nil
}

func (s *bookingService) GetByID(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(booking.UserID) {
		return nil, apperrors.Forbidden("You can only view your own bookings")
	}
	return booking, nil
}

func (s *bookingService) List(ctx context.Context, actor model.Actor, query ListQuery, limit int, offset int64) ([]*model.Booking, int64, error) {
	if !actor.IsAdmin() {
		if query.UserID != "" && query.UserID != actor.UserID {
			return nil, 0, apperrors.Forbidden("You can only list your own bookings")
		}
		query.UserID = actor.UserID
	}
	filter := repository.Filter{
		UserID:     query.UserID,
		FacilityID: query.FacilityID,
		Statuses:   query.Statuses,
		From:       query.From,
		To:         query.To,
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Unavailable("Booking store", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Unavailable("Booking store", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return bookings, count, nil
}

// Update edits a pending booking. Changes to the window or the number of
// participants go through admission again.
func (s *bookingService) Update(ctx context.Context, actor model.Actor, id string, updates *model.BookingUpdate) (*model.Booking, error) {
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(existing.UserID) {
		return nil, apperrors.Forbidden("You can only change your own bookings")
	}
	if existing.Status != model.StatusPending {
		return nil, apperrors.InvalidState("Only pending bookings can be changed").
			WithDetail("booking_id", id).
			WithDetail("status", existing.Status)
	}

	s.sanitizeUpdate(updates)
	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Booking update validation failed", "id", id, "error", err)
		return nil, validationError(err)
	}

	merged := mergeBookingUpdates(existing, updates)
	merged.UpdatedAt = s.clock.Now().UTC()
	readmit := updates.TouchesWindow() || updates.Participants != nil

	unlock, err := s.lock(ctx, merged)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if readmit {
			if _, err := s.resolver.Evaluate(txCtx, admission.Candidate{Booking: merged, Actor: actor}, admission.Options{}); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateDetails(txCtx, merged); err != nil {
			switch {
			case errors.Is(err, bookingserrors.ErrNotFound):
				return apperrors.NotFoundWithID("Booking", id)
			case errors.Is(err, bookingserrors.ErrStatusMismatch):
				return apperrors.InvalidState("Only pending bookings can be changed").WithDetail("booking_id", id)
			}
			return apperrors.Unavailable("Booking store", err)
		}
		return nil
	})
	if err != nil {
		s.logRejection("Update", merged, err)
		return nil, translateStoreError(err)
	}

	s.cfg.Log.Info("Booking updated successfully", "id", id, "readmitted", readmit)
	return merged, nil
}

func (s *bookingService) Approve(ctx context.Context, actor model.Actor, id, adminResponse string) (*lifecycle.ApproveResult, error) {
	return s.engine.Approve(ctx, sanitizer.SanitizeID(id), sanitizer.SanitizeText(adminResponse), actor)
}

func (s *bookingService) Deny(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
	return s.engine.Deny(ctx, sanitizer.SanitizeID(id), sanitizer.SanitizeText(reason), actor)
}

func (s *bookingService) Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
	return s.engine.Cancel(ctx, sanitizer.SanitizeID(id), sanitizer.SanitizeText(reason), actor)
}

func (s *bookingService) ConfirmArrival(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	return s.engine.ConfirmArrival(ctx, sanitizer.SanitizeID(id), actor)
}

func (s *bookingService) find(ctx context.Context, id string) (*model.Booking, error) {
	id = sanitizer.SanitizeID(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to retrieve booking", "id", id, "error", err)
		return nil, apperrors.Unavailable("Booking store", err)
	}
	return booking, nil
}

func (s *bookingService) lock(ctx context.Context, b *model.Booking) (lock.Unlock, error) {
	unlock, err := s.locker.Lock(ctx, lock.FacilityKey(b.FacilityID), lock.UserKey(b.UserID))
	if err != nil {
		s.cfg.Log.Warn("Failed to acquire booking lock", "facility_id", b.FacilityID, "user_id", b.UserID, "error", err)
		return nil, apperrors.Conflict("The facility is busy with another request, please retry").
			WithDetail("facility_id", b.FacilityID)
	}
	return unlock, nil
}

func (s *bookingService) releaseHold(ctx context.Context, holdID, userID string) {
	if holdID == "" || s.holds == nil {
		return
	}
	if err := s.holds.Release(ctx, holdID, userID); err != nil {
		s.cfg.Log.Warn("Failed to release slot hold after booking", "hold_id", holdID, "user_id", userID, "error", err)
	}
}

func (s *bookingService) dispatch(n notify.Notice) {
	if s.notices != nil {
		s.notices.Dispatch(n)
	}
}

func (s *bookingService) logRejection(op string, b *model.Booking, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.CodeUnavailable && appErr.Code != apperrors.CodeInternal {
		s.cfg.Log.Info("Booking request rejected",
			"operation", op,
			"facility_id", b.FacilityID,
			"user_id", b.UserID,
			"code", appErr.Code,
			"reason", appErr.Reason,
		)
		return
	}
	s.cfg.Log.Error("Booking request failed", "operation", op, "facility_id", b.FacilityID, "error", err)
}

func (s *bookingService) sanitizeRequest(req *model.BookingRequest) {
	req.FacilityID = sanitizer.SanitizeID(req.FacilityID)
	req.HoldID = sanitizer.SanitizeID(req.HoldID)
	req.Purpose = sanitizer.SanitizeText(req.Purpose)
	req.Equipment = sanitizeEquipment(req.Equipment)
}

func (s *bookingService) sanitizeUpdate(u *model.BookingUpdate) {
	if u.Purpose != nil {
		purpose := sanitizer.SanitizeText(*u.Purpose)
		u.Purpose = &purpose
	}
	if u.Equipment != nil {
		u.Equipment = sanitizeEquipment(u.Equipment)
		if u.Equipment == nil {
			u.Equipment = &model.Equipment{}
		}
	}
}

func sanitizeEquipment(e *model.Equipment) *model.Equipment {
	if e == nil {
		return nil
	}
	e.Items = sanitizer.NormalizeSlice(e.Items, sanitizer.SanitizeCategory)
	e.Other = sanitizer.SanitizeText(e.Other)
	if e.Empty() {
		return nil
	}
	return e
}

func mergeBookingUpdates(existing *model.Booking, u *model.BookingUpdate) *model.Booking {
	merged := *existing
	if u.Start != nil {
		merged.Start = u.Start.UTC()
	}
	if u.End != nil {
		merged.End = u.End.UTC()
	}
	if u.Purpose != nil {
		merged.Purpose = *u.Purpose
	}
	if u.Participants != nil {
		merged.Participants = *u.Participants
	}
	if u.Equipment != nil {
		if u.Equipment.Empty() {
			merged.Equipment = nil
		} else {
			merged.Equipment = u.Equipment
		}
	}
	return &merged
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return apperrors.Validation("Booking validation failed", map[string]any{"fields": fieldErrs})
	}
	return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
}

// translateStoreError keeps AppErrors and wraps anything else coming out
// of a transaction as a retriable store outage.
func translateStoreError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Unavailable("Booking store", err)
}
