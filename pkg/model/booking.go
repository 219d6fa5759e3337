package model

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that count against a user's single
// active booking and that may still occupy a facility.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

func (s Status) Terminal() bool {
	return s == StatusDenied || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// Machine-readable reasons recorded on a booking when it leaves the
// pending or approved state.
const (
	ReasonSlotTaken            = "slot_taken"
	ReasonOtherBookingApproved = "other_booking_approved"
	ReasonArrivalTimeout       = "arrival_timeout"
	ReasonForceCancelled       = "force_cancelled"
	ReasonCancelledBeforeStart = "cancelled_before_start"
	ReasonEndedEarly           = "ended_early"
	ReasonWithdrawn            = "withdrawn"
	ReasonDeniedByAdmin        = "denied_by_admin"
)

type Booking struct {
	ID                 string     `json:"id" bson:"_id"`
	FacilityID         string     `json:"facility_id" bson:"facility_id"`
	UserID             string     `json:"user_id" bson:"user_id"`
	Purpose            string     `json:"purpose" bson:"purpose"`
	Start              time.Time  `json:"start" bson:"start"`
	End                time.Time  `json:"end" bson:"end"`
	Participants       int        `json:"participants" bson:"participants"`
	Equipment          *Equipment `json:"equipment,omitempty" bson:"equipment,omitempty"`
	Status             Status     `json:"status" bson:"status"`
	StatusReason       string     `json:"status_reason,omitempty" bson:"status_reason,omitempty"`
	AdminResponse      string     `json:"admin_response,omitempty" bson:"admin_response,omitempty"`
	ArrivalDeadline    *time.Time `json:"arrival_deadline,omitempty" bson:"arrival_deadline,omitempty"`
	ArrivalConfirmed   bool       `json:"arrival_confirmed" bson:"arrival_confirmed"`
	ArrivalConfirmedAt *time.Time `json:"arrival_confirmed_at,omitempty" bson:"arrival_confirmed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updated_at"`
}

// ActiveAt reports whether the booking is pending or approved and has not
// yet ended at now.
func (b *Booking) ActiveAt(now time.Time) bool {
	return (b.Status == StatusPending || b.Status == StatusApproved) && b.End.After(now)
}

func (b *Booking) Ended(now time.Time) bool {
	return !b.End.After(now)
}

func (b *Booking) Started(now time.Time) bool {
	return !b.Start.After(now)
}

func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// Summary is the minimal view of a booking attached to conflict reports
// and availability slots.
func (b *Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:         b.ID,
		FacilityID: b.FacilityID,
		UserID:     b.UserID,
		Start:      b.Start,
		End:        b.End,
		Status:     b.Status,
	}
}

type BookingSummary struct {
	ID         string    `json:"id"`
	FacilityID string    `json:"facility_id"`
	UserID     string    `json:"user_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     Status    `json:"status"`
}

func Summaries(bookings []*Booking) []BookingSummary {
	out := make([]BookingSummary, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.Summary())
	}
	return out
}

// StatusChange describes a conditional transition. Nil pointer fields are
// left untouched.
type StatusChange struct {
	To                 Status
	Reason             string
	AdminResponse      string
	ArrivalDeadline    *time.Time
	ArrivalConfirmedAt *time.Time
	End                *time.Time
	At                 time.Time
}

// Apply writes the change onto b. Callers must have checked the current
// status beforehand.
func (c StatusChange) Apply(b *Booking) {
	b.Status = c.To
	if c.Reason != "" {
		b.StatusReason = c.Reason
	}
	if c.AdminResponse != "" {
		b.AdminResponse = c.AdminResponse
	}
	if c.ArrivalDeadline != nil {
		deadline := *c.ArrivalDeadline
		b.ArrivalDeadline = &deadline
	}
	if c.ArrivalConfirmedAt != nil {
		confirmed := *c.ArrivalConfirmedAt
		b.ArrivalConfirmed = true
		b.ArrivalConfirmedAt = &confirmed
	}
	if c.End != nil {
		b.End = *c.End
	}
	b.UpdatedAt = c.At
}

type BookingRequest struct {
	FacilityID           string     `json:"facility_id" validate:"required,max=64"`
	Start                time.Time  `json:"start" validate:"required"`
	End                  time.Time  `json:"end" validate:"required"`
	Purpose              string     `json:"purpose" validate:"required,min=2,max=200"`
	Participants         int        `json:"participants" validate:"gte=0,lte=10000"`
	Equipment            *Equipment `json:"equipment,omitempty" validate:"omitempty"`
	HoldID               string     `json:"hold_id,omitempty" validate:"omitempty,max=64"`
	ForceCancelConflicts bool       `json:"force_cancel_conflicts,omitempty"`
}

type BookingUpdate struct {
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	Purpose      *string    `json:"purpose,omitempty" validate:"omitempty,min=2,max=200"`
	Participants *int       `json:"participants,omitempty" validate:"omitempty,gte=0,lte=10000"`
	Equipment    *Equipment `json:"equipment,omitempty" validate:"omitempty"`
}

func (u *BookingUpdate) Empty() bool {
	return u.Start == nil && u.End == nil && u.Purpose == nil && u.Participants == nil && u.Equipment == nil
}

// TouchesWindow reports whether the update moves the booking in time.
func (u *BookingUpdate) TouchesWindow() bool {
	return u.Start != nil || u.End != nil
}
