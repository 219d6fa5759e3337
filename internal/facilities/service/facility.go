package service

import (
	"context"
	"errors"
	"sync"

	facilityerrors "spacebook/internal/facilities/errors"
	"spacebook/internal/facilities/repository"
	"spacebook/internal/facilities/validator"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/lock"
	"spacebook/pkg/model"
	"spacebook/pkg/sanitizer"

	"github.com/google/uuid"
)

type FacilityService interface {
	Create(ctx context.Context, actor model.Actor, facility *model.Facility) error
	GetByID(ctx context.Context, id string) (*model.Facility, error)
	GetAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, int64, error)
	Update(ctx context.Context, actor model.Actor, id string, updates *model.FacilityUpdate) (*model.Facility, error)
	MarkUnavailable(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error)
	ClearUnavailable(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error)
}

type facilityService struct {
	repo      repository.FacilityRepository
	validator *validator.FacilityValidator
	locker    lock.Locker
	clock     clock.Clock
	cfg       *config.Config
}

func NewFacilityService(
	repo repository.FacilityRepository,
	validator *validator.FacilityValidator,
	locker lock.Locker,
	clk clock.Clock,
	cfg *config.Config,
) FacilityService {
	return &facilityService{
		repo:      repo,
		validator: validator,
		locker:    locker,
		clock:     clk,
		cfg:       cfg,
	}
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("Only administrators can manage facilities")
	}
	return nil
}

func (s *facilityService) Create(ctx context.Context, actor model.Actor, facility *model.Facility) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	s.sanitize(facility)
	if err := s.validator.Validate(facility); err != nil {
		s.cfg.Log.Warn("Facility validation failed",
			"name", facility.Name,
			"error", err,
		)
		return apperrors.Validation("Facility validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	now := s.clock.Now().UTC()
	facility.ID = uuid.NewString()
	facility.CreatedAt = now
	facility.UpdatedAt = now
	facility.Unavailable = mergeAll(facility.Unavailable)

	if err := s.repo.Create(ctx, facility); err != nil {
		if errors.Is(err, facilityerrors.ErrDuplicateName) {
			return apperrors.Conflict("Facility with the same name already exists").
				WithDetail("name", facility.Name)
		}
		s.cfg.Log.Error("Failed to create facility",
			"name", facility.Name,
			"error", err,
		)
		return apperrors.Unavailable("Facility store", err)
	}

	s.cfg.Log.Info("Facility created successfully",
		"id", facility.ID,
		"name", facility.Name,
		"capacity", facility.Capacity,
		"category", facility.Category,
	)
	return nil
}

func (s *facilityService) GetByID(ctx context.Context, id string) (*model.Facility, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Facility ID cannot be empty")
	}

	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateFindError(id, err)
	}
	return facility, nil
}

func (s *facilityService) GetAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	sharedCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var count int64
	var facilities []*model.Facility
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.Count(sharedCtx, activeOnly)
		if err != nil {
			s.cfg.Log.Error("Failed to count facilities", "error", err)
			errCount = apperrors.Unavailable("Facility store", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		facilities, err = s.repo.FindAll(sharedCtx, activeOnly, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get facilities",
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = apperrors.Unavailable("Facility store", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return facilities, count, nil
}

func (s *facilityService) Update(ctx context.Context, actor model.Actor, id string, updates *model.FacilityUpdate) (*model.Facility, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(updates); err != nil {
		return nil, apperrors.Validation("Facility validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	return s.mutate(ctx, id, "update", func(f *model.Facility) error {
		applyUpdate(f, updates)
		s.sanitize(f)
		if err := s.validator.Validate(f); err != nil {
			return apperrors.Validation("Facility validation failed", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	})
}

func (s *facilityService) MarkUnavailable(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r.Reason = sanitizer.SanitizeText(r.Reason)
	if err := s.validator.ValidateRange(&r); err != nil {
		return nil, apperrors.Validation("Invalid date range", map[string]any{
			"error": err.Error(),
		})
	}

	return s.mutate(ctx, id, "mark_unavailable", func(f *model.Facility) error {
		f.Unavailable = mergeRange(f.Unavailable, r)
		return nil
	})
}

func (s *facilityService) ClearUnavailable(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateRange(&r); err != nil {
		return nil, apperrors.Validation("Invalid date range", map[string]any{
			"error": err.Error(),
		})
	}

	return s.mutate(ctx, id, "clear_unavailable", func(f *model.Facility) error {
		f.Unavailable = clearRange(f.Unavailable, r)
		return nil
	})
}

// mutate runs a read-modify-write of one facility under its lock, which is
// the same lock booking admission takes for that facility.
func (s *facilityService) mutate(ctx context.Context, id, op string, apply func(*model.Facility) error) (*model.Facility, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Facility ID cannot be empty")
	}

	unlock, err := s.locker.Lock(ctx, lock.FacilityKey(id))
	if err != nil {
		return nil, apperrors.Conflict("Facility is being modified by another request, please retry").
			WithDetail("facility_id", id)
	}
	defer unlock()

	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateFindError(id, err)
	}

	if err := apply(facility); err != nil {
		return nil, err
	}
	facility.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, facility); err != nil {
		if errors.Is(err, facilityerrors.ErrDuplicateName) {
			return nil, apperrors.Conflict("Another facility with the same name already exists").
				WithDetail("name", facility.Name)
		}
		if errors.Is(err, facilityerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Facility", id)
		}
		s.cfg.Log.Error("Failed to update facility", "id", id, "operation", op, "error", err)
		return nil, apperrors.Unavailable("Facility store", err)
	}

	s.cfg.Log.Info("Facility updated successfully",
		"id", id,
		"operation", op,
		"active", facility.Active,
		"unavailable_ranges", len(facility.Unavailable),
	)
	return facility, nil
}

func (s *facilityService) translateFindError(id string, err error) error {
	if errors.Is(err, facilityerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Facility", id)
	}
	s.cfg.Log.Error("Failed to get facility by ID", "id", id, "error", err)
	return apperrors.Unavailable("Facility store", err)
}

func (s *facilityService) sanitize(f *model.Facility) {
	f.Name = sanitizer.SanitizeText(f.Name)
	f.Category = sanitizer.SanitizeCategory(f.Category)
	f.AllowedRoles = sanitizer.NormalizeSlice(f.AllowedRoles, sanitizer.SanitizeCategory)
	for i := range f.Unavailable {
		f.Unavailable[i].Reason = sanitizer.SanitizeText(f.Unavailable[i].Reason)
	}
}

func applyUpdate(f *model.Facility, u *model.FacilityUpdate) {
	if u.Name != nil {
		f.Name = *u.Name
	}
	if u.Category != nil {
		f.Category = *u.Category
	}
	if u.Capacity != nil {
		f.Capacity = *u.Capacity
	}
	if u.Active != nil {
		f.Active = *u.Active
	}
	if u.AllowedRoles != nil {
		f.AllowedRoles = append([]model.Role(nil), (*u.AllowedRoles)...)
	}
}

func mergeAll(ranges []model.DateRange) []model.DateRange {
	var out []model.DateRange
	for _, r := range ranges {
		out = mergeRange(out, r)
	}
	return out
}
