package validator

import (
	"errors"
	"spacebook/pkg/logger"
	"spacebook/pkg/model"
	"testing"
	"time"
)

func TestValidateRequest(t *testing.T) {
	v := NewBookingValidator(logger.Discard())
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	valid := func() model.BookingRequest {
		return model.BookingRequest{
			FacilityID:   "fac-1",
			Start:        start,
			End:          start.Add(time.Hour),
			Purpose:      "Team sync",
			Participants: 4,
		}
	}

	tests := []struct {
		name      string
		mutate    func(r *model.BookingRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *model.BookingRequest) {}},
		{name: "missing facility", mutate: func(r *model.BookingRequest) { r.FacilityID = "" }, wantField: "facility_id"},
		{name: "missing purpose", mutate: func(r *model.BookingRequest) { r.Purpose = "" }, wantField: "purpose"},
		{name: "negative participants", mutate: func(r *model.BookingRequest) { r.Participants = -1 }, wantField: "participants"},
		{name: "end before start", mutate: func(r *model.BookingRequest) { r.End = start.Add(-time.Hour) }, wantField: "end"},
		{name: "end equals start", mutate: func(r *model.BookingRequest) { r.End = start }, wantField: "end"},
		{
			name: "known equipment",
			mutate: func(r *model.BookingRequest) {
				r.Equipment = &model.Equipment{Items: []model.EquipmentItem{model.EquipmentProjector, model.EquipmentLaptop}}
			},
		},
		{
			name: "unknown equipment",
			mutate: func(r *model.BookingRequest) {
				r.Equipment = &model.Equipment{Items: []model.EquipmentItem{"hovercraft"}}
			},
			wantField: "items[0]",
		},
		{
			name: "duplicate equipment",
			mutate: func(r *model.BookingRequest) {
				r.Equipment = &model.Equipment{Items: []model.EquipmentItem{model.EquipmentProjector, model.EquipmentProjector}}
			},
			wantField: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := v.ValidateRequest(&req)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q (%v)", verrs[0].Field, tt.wantField, verrs)
			}
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	v := NewBookingValidator(logger.Discard())
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Minute)
	short := "x"
	purpose := "Planning"

	tests := []struct {
		name    string
		update  model.BookingUpdate
		wantErr bool
	}{
		{name: "empty", update: model.BookingUpdate{}, wantErr: true},
		{name: "purpose only", update: model.BookingUpdate{Purpose: &purpose}},
		{name: "purpose too short", update: model.BookingUpdate{Purpose: &short}, wantErr: true},
		{name: "inverted window", update: model.BookingUpdate{Start: &start, End: &end}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUpdate(&tt.update)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUpdate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
