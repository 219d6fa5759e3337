// Package availability projects bookings and holds onto the fixed slot
// grid of one day, per facility.
//
// Project is pure: it reads only its input and never writes. Callers hand
// it a snapshot taken from the repositories, so it can run concurrently
// with bookings being created or approved.
package availability

import (
	"sort"
	"time"

	"spacebook/pkg/model"
	"spacebook/pkg/timewindow"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotScheduled   SlotStatus = "scheduled"
	SlotUnavailable SlotStatus = "unavailable"
)

type Slot struct {
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
	Status   SlotStatus             `json:"status"`
	Bookings []model.BookingSummary `json:"bookings,omitempty"`
}

type FacilitySummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Category     string       `json:"category,omitempty"`
	Capacity     int          `json:"capacity"`
	AllowedRoles []model.Role `json:"allowed_roles,omitempty"`
}

type FacilityAvailability struct {
	Facility          FacilitySummary `json:"facility"`
	Date              string          `json:"date"`
	IsActive          bool            `json:"is_active"`
	UnavailableReason string          `json:"unavailable_reason,omitempty"`
	MaxUsageHours     float64         `json:"max_usage_hours"`
	Slots             []Slot          `json:"slots"`
}

// Input is one consistent snapshot. Bookings may span several facilities
// and any status; Holds must already be limited to live ones.
type Input struct {
	Facilities []*model.Facility
	Bookings   []*model.Booking
	Holds      []*model.SlotHold
	Date       time.Time
	Viewer     model.Actor
	Now        time.Time

	Hours       timewindow.Hours
	Location    *time.Location
	Step        time.Duration
	MaxDuration time.Duration
	// CategoryCap returns the policy cap for a facility category.
	CategoryCap func(category string) (time.Duration, bool)
}

func Project(in Input) ([]FacilityAvailability, error) {
	grid, err := timewindow.Grid(in.Date, in.Hours, in.Step, in.Location)
	if err != nil {
		return nil, err
	}
	date := timewindow.FormatDate(in.Date, in.Location)
	today := date == timewindow.FormatDate(in.Now, in.Location)

	bookings := make(map[string][]*model.Booking)
	for _, b := range in.Bookings {
		if visible(b, in.Viewer) {
			bookings[b.FacilityID] = append(bookings[b.FacilityID], b)
		}
	}
	holds := make(map[string][]*model.SlotHold)
	for _, h := range in.Holds {
		if h.UserID != in.Viewer.UserID && h.Live(in.Now) {
			holds[h.FacilityID] = append(holds[h.FacilityID], h)
		}
	}

	facilities := append([]*model.Facility(nil), in.Facilities...)
	sort.Slice(facilities, func(i, j int) bool { return facilities[i].Name < facilities[j].Name })

	out := make([]FacilityAvailability, 0, len(facilities))
	for _, f := range facilities {
		fa := FacilityAvailability{
			Facility: FacilitySummary{
				ID:           f.ID,
				Name:         f.Name,
				Category:     f.Category,
				Capacity:     f.Capacity,
				AllowedRoles: f.AllowedRoles,
			},
			Date:          date,
			IsActive:      true,
			MaxUsageHours: maxUsageHours(f, in),
			Slots:         make([]Slot, 0, len(grid)),
		}
		reason, closed := f.ClosedOn(date)
		if closed {
			fa.IsActive = false
			fa.UnavailableReason = reason
		}

		for _, w := range grid {
			slot := Slot{Start: w.Start, End: w.End, Status: SlotAvailable}
			if closed {
				slot.Status = SlotUnavailable
				fa.Slots = append(fa.Slots, slot)
				continue
			}
			for _, b := range bookings[f.ID] {
				if b.Overlaps(w.Start, w.End) {
					slot.Bookings = append(slot.Bookings, b.Summary())
				}
			}
			if len(slot.Bookings) > 0 {
				slot.Status = SlotScheduled
			} else if (today && !w.End.After(in.Now)) || held(holds[f.ID], w) {
				slot.Status = SlotUnavailable
			}
			fa.Slots = append(fa.Slots, slot)
		}
		out = append(out, fa)
	}
	return out, nil
}

// visible: approved bookings are public, pending ones only to their owner
// and administrators, denied and cancelled ones to nobody.
func visible(b *model.Booking, viewer model.Actor) bool {
	switch b.Status {
	case model.StatusApproved:
		return true
	case model.StatusPending:
		return b.UserID == viewer.UserID || viewer.IsAdmin()
	}
	return false
}

func held(holds []*model.SlotHold, w timewindow.Window) bool {
	for _, h := range holds {
		if h.Overlaps(w.Start, w.End) {
			return true
		}
	}
	return false
}

func maxUsageHours(f *model.Facility, in Input) float64 {
	limit := in.MaxDuration
	if in.CategoryCap != nil {
		if c, ok := in.CategoryCap(f.Category); ok {
			limit = c
		}
	}
	return limit.Hours()
}
