// Package admission decides whether a proposed booking may be stored.
//
// The resolver runs a fixed sequence of checks against the clock, the
// facility and the bookings already in the repository. The first failing
// check wins and is reported as an AppError whose Reason is one of the
// constants in reasons.go. Callers must hold the facility and user locks
// for the candidate while calling Admit.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "spacebook/internal/bookings/errors"
	"spacebook/internal/bookings/repository"
	facilityerrors "spacebook/internal/facilities/errors"
	facilityrepo "spacebook/internal/facilities/repository"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/model"
	"spacebook/pkg/timewindow"
)

type Candidate struct {
	// Booking carries the proposed facility, window, owner and
	// participants. A non-empty ID marks an edit of that booking, which is
	// then ignored in the per-user checks.
	Booking *model.Booking
	Actor   model.Actor
}

type Options struct {
	ForceCancelConflicts bool
}

// Plan is the outcome of a successful evaluation before any write.
type Plan struct {
	Booking     *model.Booking
	Facility    *model.Facility
	ToCancel    []*model.Booking
	EvaluatedAt time.Time
}

type Admission struct {
	Booking        *model.Booking
	Facility       *model.Facility
	ForceCancelled []*model.Booking
}

type Resolver struct {
	bookings   repository.BookingRepository
	facilities facilityrepo.FacilityRepository
	clock      clock.Clock
	cfg        *config.Config
}

func NewResolver(
	bookings repository.BookingRepository,
	facilities facilityrepo.FacilityRepository,
	clk clock.Clock,
	cfg *config.Config,
) *Resolver {
	return &Resolver{
		bookings:   bookings,
		facilities: facilities,
		clock:      clk,
		cfg:        cfg,
	}
}

// Admit evaluates the candidate and, when every check passes, cancels the
// requester's conflicting bookings selected for force cancellation.
func (r *Resolver) Admit(ctx context.Context, c Candidate, opts Options) (*Admission, error) {
	plan, err := r.Evaluate(ctx, c, opts)
	if err != nil {
		return nil, err
	}

	cancelled, err := r.forceCancel(ctx, plan)
	if err != nil {
		return nil, err
	}

	return &Admission{
		Booking:        plan.Booking,
		Facility:       plan.Facility,
		ForceCancelled: cancelled,
	}, nil
}

// Evaluate runs every check without writing anything.
func (r *Resolver) Evaluate(ctx context.Context, c Candidate, opts Options) (*Plan, error) {
	b := c.Booking
	now := r.clock.Now()
	duration := b.End.Sub(b.Start)

	if err := r.checkWindow(b, c.Actor, now); err != nil {
		return nil, err
	}

	facility, err := r.checkFacility(ctx, b)
	if err != nil {
		return nil, err
	}

	if b.Participants < 1 {
		return nil, apperrors.Validation("At least one participant is required", map[string]any{
			"participants": b.Participants,
		}).WithReason(ReasonInvalidParticipants)
	}
	if b.Participants > facility.Capacity {
		return nil, apperrors.Validation(
			fmt.Sprintf("Participants (%d) exceed the capacity of %s (%d)", b.Participants, facility.Name, facility.Capacity),
			map[string]any{
				"participants":  b.Participants,
				"capacity":      facility.Capacity,
				"facility_id":   facility.ID,
				"facility_name": facility.Name,
			},
		).WithReason(ReasonCapacityExceeded)
	}

	if limit, ok := r.cfg.Policy.MaxDuration(facility.Category); ok && duration > limit && !c.Actor.Privileged() {
		return nil, apperrors.Validation(
			fmt.Sprintf("Bookings of %s facilities are limited to %s", facility.Category, limit),
			map[string]any{
				"category":     facility.Category,
				"max_duration": limit.String(),
				"requested":    duration.String(),
				"facility_id":  facility.ID,
			},
		).WithReason(ReasonPolicyDurationExceeded)
	}

	if facility.RoleRestricted() && !c.Actor.Privileged() && !c.Actor.HasAnyRole(facility.AllowedRoles) {
		return nil, apperrors.Validation(
			fmt.Sprintf("%s is restricted to specific roles", facility.Name),
			map[string]any{
				"allowed_roles": facility.AllowedRoles,
				"facility_id":   facility.ID,
				"facility_name": facility.Name,
			},
		).WithReason(ReasonRoleRestricted)
	}

	toCancel, err := r.checkOwnBookings(ctx, b, now, opts)
	if err != nil {
		return nil, err
	}

	taken, err := r.bookings.FindOverlapping(ctx, b.FacilityID, b.Start, b.End, model.StatusApproved)
	if err != nil {
		return nil, r.storeError("find overlapping bookings", err)
	}
	taken = exclude(taken, func(o *model.Booking) bool { return o.ID == b.ID || o.UserID == b.UserID })
	if len(taken) > 0 {
		return nil, apperrors.Conflict("The requested time overlaps an approved booking").
			WithReason(ReasonSlotTaken).
			WithDetail("facility_id", facility.ID).
			WithDetail("facility_name", facility.Name).
			WithDetail("conflicting_bookings", model.Summaries(taken))
	}

	return &Plan{
		Booking:     b,
		Facility:    facility,
		ToCancel:    toCancel,
		EvaluatedAt: now,
	}, nil
}

func (r *Resolver) checkWindow(b *model.Booking, actor model.Actor, now time.Time) error {
	loc := r.cfg.Location
	window := map[string]any{"start": b.Start, "end": b.End}

	if !b.End.After(b.Start) {
		return apperrors.Validation("End time must be after start time", window).
			WithReason(ReasonInvalidTimeRange)
	}
	if !timewindow.SameDay(b.Start, b.End, loc) {
		return apperrors.Validation("A booking must start and end on the same day", window).
			WithReason(ReasonNotSameDay)
	}
	if !r.cfg.Hours.Contains(b.Start, b.End, loc) {
		return apperrors.Validation(
			fmt.Sprintf("Bookings must fall within operating hours %s", r.cfg.Hours),
			map[string]any{
				"start":           b.Start,
				"end":             b.End,
				"operating_hours": r.cfg.Hours.String(),
				"time_zone":       loc.String(),
			},
		).WithReason(ReasonOutsideOperatingHours)
	}
	if b.Start.Before(now) {
		return apperrors.Validation("Start time is in the past", map[string]any{
			"start": b.Start,
			"now":   now,
		}).WithReason(ReasonStartInPast)
	}

	duration := b.End.Sub(b.Start)
	if duration < r.cfg.MinBookingDuration {
		return apperrors.Validation(
			fmt.Sprintf("Bookings must last at least %s", r.cfg.MinBookingDuration),
			map[string]any{"requested": duration.String(), "min_duration": r.cfg.MinBookingDuration.String()},
		).WithReason(ReasonDurationTooShort)
	}
	if duration > r.cfg.MaxBookingDuration && !actor.Privileged() {
		return apperrors.Validation(
			fmt.Sprintf("Bookings may last at most %s", r.cfg.MaxBookingDuration),
			map[string]any{"requested": duration.String(), "max_duration": r.cfg.MaxBookingDuration.String()},
		).WithReason(ReasonDurationTooLong)
	}
	return nil
}

func (r *Resolver) checkFacility(ctx context.Context, b *model.Booking) (*model.Facility, error) {
	facility, err := r.facilities.FindByID(ctx, b.FacilityID)
	if err != nil {
		if errors.Is(err, facilityerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Facility", b.FacilityID).WithReason(ReasonFacilityNotFound)
		}
		return nil, r.storeError("find facility", err)
	}

	if !facility.Active {
		return nil, apperrors.Validation(fmt.Sprintf("%s is not accepting bookings", facility.Name), map[string]any{
			"facility_id":   facility.ID,
			"facility_name": facility.Name,
		}).WithReason(ReasonFacilityInactive)
	}

	date := timewindow.FormatDate(b.Start, r.cfg.Location)
	if reason, closed := facility.ClosedOn(date); closed {
		return nil, apperrors.Validation(fmt.Sprintf("%s is unavailable on %s", facility.Name, date), map[string]any{
			"facility_id":        facility.ID,
			"facility_name":      facility.Name,
			"date":               date,
			"unavailable_reason": reason,
		}).WithReason(ReasonFacilityUnavailable)
	}
	return facility, nil
}

// checkOwnBookings applies the one-active-booking rule and the own-overlap
// rule. With force both only select bookings for cancellation.
func (r *Resolver) checkOwnBookings(ctx context.Context, b *model.Booking, now time.Time, opts Options) ([]*model.Booking, error) {
	active, err := r.bookings.FindActiveByUser(ctx, b.UserID, now)
	if err != nil {
		return nil, r.storeError("find active bookings", err)
	}
	active = exclude(active, func(o *model.Booking) bool { return o.ID == b.ID })

	var overlapping, elsewhere []*model.Booking
	for _, o := range active {
		if o.Overlaps(b.Start, b.End) {
			overlapping = append(overlapping, o)
		} else {
			elsewhere = append(elsewhere, o)
		}
	}

	var toCancel []*model.Booking
	if r.cfg.CascadeDenyUserPending && len(elsewhere) > 0 {
		if !opts.ForceCancelConflicts {
			return nil, apperrors.Conflict("You already have an active booking").
				WithReason(ReasonActiveBookingExists).
				WithDetail("conflicting_bookings", model.Summaries(elsewhere)).
				WithDetail("can_force_cancel", true)
		}
		toCancel = append(toCancel, elsewhere...)
	}

	if len(overlapping) > 0 {
		if !opts.ForceCancelConflicts {
			return nil, apperrors.Conflict("You already have a booking during this time").
				WithReason(ReasonOwnBookingOverlap).
				WithDetail("conflicting_bookings", model.Summaries(overlapping)).
				WithDetail("can_force_cancel", true)
		}
		toCancel = append(toCancel, overlapping...)
	}
	return toCancel, nil
}

func (r *Resolver) forceCancel(ctx context.Context, plan *Plan) ([]*model.Booking, error) {
	cancelled := make([]*model.Booking, 0, len(plan.ToCancel))
	for _, victim := range plan.ToCancel {
		change := model.StatusChange{
			To:            model.StatusCancelled,
			Reason:        model.ReasonForceCancelled,
			AdminResponse: ForceCancelMessage,
			At:            plan.EvaluatedAt,
		}
		if victim.Status == model.StatusApproved && victim.Started(plan.EvaluatedAt) {
			end := plan.EvaluatedAt
			change.End = &end
		}

		updated, err := r.bookings.Transition(ctx, victim.ID, []model.Status{victim.Status}, change)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrStatusMismatch) && updated != nil && updated.Status.Terminal() {
				continue
			}
			if errors.Is(err, bookingserrors.ErrStatusMismatch) || errors.Is(err, bookingserrors.ErrNotFound) {
				return nil, apperrors.Conflict("A booking selected for cancellation changed concurrently, please retry").
					WithDetail("booking_id", victim.ID)
			}
			return nil, r.storeError("force-cancel booking", err)
		}

		r.cfg.Log.Info("Booking force-cancelled",
			"id", updated.ID,
			"user_id", updated.UserID,
			"facility_id", updated.FacilityID,
			"replaced_by_request_for", plan.Booking.FacilityID,
		)
		cancelled = append(cancelled, updated)
	}
	return cancelled, nil
}

func (r *Resolver) storeError(op string, err error) error {
	r.cfg.Log.Error("Admission store read failed", "operation", op, "error", err)
	return apperrors.Unavailable("Booking store", err)
}

func exclude(bookings []*model.Booking, drop func(*model.Booking) bool) []*model.Booking {
	out := bookings[:0:0]
	for _, b := range bookings {
		if !drop(b) {
			out = append(out, b)
		}
	}
	return out
}
