package service

import (
	"reflect"
	"spacebook/pkg/model"
	"testing"
)

func TestMergeRange(t *testing.T) {
	tests := []struct {
		name     string
		existing []model.DateRange
		add      model.DateRange
		want     []model.DateRange
	}{
		{
			name: "into empty",
			add:  model.DateRange{From: "2026-03-10", To: "2026-03-12", Reason: "Renovation"},
			want: []model.DateRange{{From: "2026-03-10", To: "2026-03-12", Reason: "Renovation"}},
		},
		{
			name:     "overlapping same reason",
			existing: []model.DateRange{{From: "2026-03-10", To: "2026-03-12", Reason: "Renovation"}},
			add:      model.DateRange{From: "2026-03-11", To: "2026-03-15", Reason: "Renovation"},
			want:     []model.DateRange{{From: "2026-03-10", To: "2026-03-15", Reason: "Renovation"}},
		},
		{
			name:     "adjacent same reason across month end",
			existing: []model.DateRange{{From: "2026-03-28", To: "2026-03-31", Reason: "Exams"}},
			add:      model.DateRange{From: "2026-04-01", To: "2026-04-02", Reason: "Exams"},
			want:     []model.DateRange{{From: "2026-03-28", To: "2026-04-02", Reason: "Exams"}},
		},
		{
			name:     "overlapping different reason",
			existing: []model.DateRange{{From: "2026-03-10", To: "2026-03-12", Reason: "Renovation"}},
			add:      model.DateRange{From: "2026-03-11", To: "2026-03-13", Reason: "Event"},
			want: []model.DateRange{
				{From: "2026-03-10", To: "2026-03-12", Reason: "Renovation"},
				{From: "2026-03-11", To: "2026-03-13", Reason: "Event"},
			},
		},
		{
			name:     "gap keeps ranges apart",
			existing: []model.DateRange{{From: "2026-03-10", To: "2026-03-11"}},
			add:      model.DateRange{From: "2026-03-13", To: "2026-03-14"},
			want: []model.DateRange{
				{From: "2026-03-10", To: "2026-03-11"},
				{From: "2026-03-13", To: "2026-03-14"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeRange(tt.existing, tt.add)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mergeRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearRange(t *testing.T) {
	base := []model.DateRange{{From: "2026-03-10", To: "2026-03-20", Reason: "Renovation"}}

	tests := []struct {
		name  string
		clear model.DateRange
		want  []model.DateRange
	}{
		{
			name:  "split in the middle",
			clear: model.DateRange{From: "2026-03-14", To: "2026-03-15"},
			want: []model.DateRange{
				{From: "2026-03-10", To: "2026-03-13", Reason: "Renovation"},
				{From: "2026-03-16", To: "2026-03-20", Reason: "Renovation"},
			},
		},
		{
			name:  "trim start",
			clear: model.DateRange{From: "2026-03-01", To: "2026-03-12"},
			want:  []model.DateRange{{From: "2026-03-13", To: "2026-03-20", Reason: "Renovation"}},
		},
		{
			name:  "trim end",
			clear: model.DateRange{From: "2026-03-18", To: "2026-03-31"},
			want:  []model.DateRange{{From: "2026-03-10", To: "2026-03-17", Reason: "Renovation"}},
		},
		{
			name:  "remove whole",
			clear: model.DateRange{From: "2026-03-10", To: "2026-03-20"},
			want:  []model.DateRange{},
		},
		{
			name:  "no intersection",
			clear: model.DateRange{From: "2026-04-01", To: "2026-04-02"},
			want:  base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clearRange(base, tt.clear)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("clearRange() = %v, want %v", got, tt.want)
			}
		})
	}
}
