package model

import "time"

type SlotHold struct {
	ID         string    `json:"id" bson:"_id"`
	FacilityID string    `json:"facility_id" bson:"facility_id"`
	UserID     string    `json:"user_id" bson:"user_id"`
	Start      time.Time `json:"start" bson:"start"`
	End        time.Time `json:"end" bson:"end"`
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (h *SlotHold) Live(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

func (h *SlotHold) Overlaps(start, end time.Time) bool {
	return h.Start.Before(end) && h.End.After(start)
}

type HoldRequest struct {
	FacilityID string    `json:"facility_id" validate:"required,max=64"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	HoldID     string    `json:"hold_id,omitempty" validate:"omitempty,max=64"`
}
