package model

import (
	"time"
)

// DateRange is an inclusive range of calendar dates in YYYY-MM-DD form.
type DateRange struct {
	From   string `json:"from" bson:"from" validate:"required,datetime=2006-01-02"`
	To     string `json:"to" bson:"to" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason,omitempty" bson:"reason,omitempty" validate:"omitempty,max=200"`
}

// Covers reports whether date (YYYY-MM-DD) falls inside the range. The
// layout sorts lexically, so string comparison is enough.
func (r DateRange) Covers(date string) bool {
	return r.From <= date && date <= r.To
}

type Facility struct {
	ID           string      `json:"id" bson:"_id"`
	Name         string      `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Category     string      `json:"category,omitempty" bson:"category,omitempty" validate:"omitempty,min=2,max=50"`
	Capacity     int         `json:"capacity" bson:"capacity" validate:"required,min=1,max=10000"`
	Active       bool        `json:"active" bson:"active"`
	AllowedRoles []Role      `json:"allowed_roles,omitempty" bson:"allowed_roles,omitempty" validate:"omitempty,unique,dive,oneof=member staff admin"`
	Unavailable  []DateRange `json:"unavailable,omitempty" bson:"unavailable,omitempty" validate:"omitempty,dive"`
	CreatedAt    time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" bson:"updated_at"`
}

// ClosedOn reports whether the facility cannot be booked on date and why.
func (f *Facility) ClosedOn(date string) (string, bool) {
	if !f.Active {
		return "Facility is inactive", true
	}
	for _, r := range f.Unavailable {
		if r.Covers(date) {
			if r.Reason != "" {
				return r.Reason, true
			}
			return "Facility is unavailable on this date", true
		}
	}
	return "", false
}

// RoleRestricted reports whether only some roles may book the facility.
func (f *Facility) RoleRestricted() bool {
	return len(f.AllowedRoles) > 0
}

type FacilityUpdate struct {
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Category     *string  `json:"category,omitempty" validate:"omitempty,max=50"`
	Capacity     *int     `json:"capacity,omitempty" validate:"omitempty,min=1,max=10000"`
	Active       *bool    `json:"active,omitempty"`
	AllowedRoles *[]Role  `json:"allowed_roles,omitempty" validate:"omitempty,unique,dive,oneof=member staff admin"`
}
