package service

import (
	"context"
	"errors"
	"sync"

	"spacebook/internal/availability"
	bookingrepo "spacebook/internal/bookings/repository"
	facilityerrors "spacebook/internal/facilities/errors"
	facilityrepo "spacebook/internal/facilities/repository"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/model"
	"spacebook/pkg/timewindow"
)

type AvailabilityService interface {
	GetAvailability(ctx context.Context, viewer model.Actor, date, facilityID string) ([]availability.FacilityAvailability, error)
}

// HoldLister reads the live holds of one facility.
type HoldLister interface {
	ListLive(ctx context.Context, facilityID string) ([]*model.SlotHold, error)
}

// ArrivalSweeper cancels approved bookings whose arrival deadline passed.
type ArrivalSweeper interface {
	SweepArrivals(ctx context.Context) ([]*model.Booking, error)
}

type availabilityService struct {
	facilities facilityrepo.FacilityRepository
	bookings   bookingrepo.BookingRepository
	holds      HoldLister
	sweeper    ArrivalSweeper
	clock      clock.Clock
	cfg        *config.Config
}

// NewAvailabilityService builds the read path. sweeper may be nil; when set
// every query first times out overdue arrivals so the grid never shows a
// booking that should already have been released.
func NewAvailabilityService(
	facilities facilityrepo.FacilityRepository,
	bookings bookingrepo.BookingRepository,
	holds HoldLister,
	sweeper ArrivalSweeper,
	clk clock.Clock,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		facilities: facilities,
		bookings:   bookings,
		holds:      holds,
		sweeper:    sweeper,
		clock:      clk,
		cfg:        cfg,
	}
}

func (s *availabilityService) GetAvailability(ctx context.Context, viewer model.Actor, date, facilityID string) ([]availability.FacilityAvailability, error) {
	loc := s.cfg.Location
	now := s.clock.Now()

	day := timewindow.StartOfDay(now, loc)
	if date != "" {
		parsed, err := timewindow.ParseDate(date, loc)
		if err != nil {
			return nil, apperrors.InvalidInput("invalid date parameter, expected YYYY-MM-DD: " + date)
		}
		day = parsed
	}

	if s.sweeper != nil {
		if _, err := s.sweeper.SweepArrivals(ctx); err != nil {
			s.cfg.Log.Warn("Lazy arrival sweep failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	bounds := timewindow.DayBounds(day, loc)
	var facilities []*model.Facility
	var bookings []*model.Booking
	var errFacilities, errBookings error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		facilities, errFacilities = s.loadFacilities(ctx, facilityID)
	}()

	go func() {
		defer wg.Done()
		bookings, errBookings = s.bookings.FindByRange(ctx, bounds.Start, bounds.End)
		if errBookings != nil {
			s.cfg.Log.Error("Failed to read bookings for availability", "date", date, "error", errBookings)
			errBookings = apperrors.Unavailable("Booking store", errBookings)
		}
	}()

	wg.Wait()
	if errFacilities != nil {
		return nil, errFacilities
	}
	if errBookings != nil {
		return nil, errBookings
	}

	var holds []*model.SlotHold
	if s.holds != nil {
		for _, f := range facilities {
			live, err := s.holds.ListLive(ctx, f.ID)
			if err != nil {
				// holds are advisory, the grid is still correct for bookings
				s.cfg.Log.Warn("Failed to read slot holds for availability", "facility_id", f.ID, "error", err)
				continue
			}
			holds = append(holds, live...)
		}
	}

	grid, err := availability.Project(availability.Input{
		Facilities:  facilities,
		Bookings:    bookings,
		Holds:       holds,
		Date:        day,
		Viewer:      viewer,
		Now:         now,
		Hours:       s.cfg.Hours,
		Location:    loc,
		Step:        s.cfg.SlotDuration,
		MaxDuration: s.cfg.MaxBookingDuration,
		CategoryCap: s.cfg.Policy.MaxDuration,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to build availability grid", err)
	}
	return grid, nil
}

func (s *availabilityService) loadFacilities(ctx context.Context, facilityID string) ([]*model.Facility, error) {
	if facilityID != "" {
		f, err := s.facilities.FindByID(ctx, facilityID)
		if err != nil {
			if errors.Is(err, facilityerrors.ErrNotFound) {
				return nil, apperrors.NotFoundWithID("Facility", facilityID)
			}
			s.cfg.Log.Error("Failed to read facility for availability", "id", facilityID, "error", err)
			return nil, apperrors.Unavailable("Facility store", err)
		}
		return []*model.Facility{f}, nil
	}
	facilities, err := s.facilities.FindAll(ctx, false, 0, 0)
	if err != nil {
		s.cfg.Log.Error("Failed to read facilities for availability", "error", err)
		return nil, apperrors.Unavailable("Facility store", err)
	}
	return facilities, nil
}
