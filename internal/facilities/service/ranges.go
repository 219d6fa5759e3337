package service

import (
	"sort"
	"spacebook/pkg/model"
	"spacebook/pkg/timewindow"
	"time"
)

func shiftDate(date string, days int) string {
	t, err := timewindow.ParseDate(date, time.UTC)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(timewindow.DateLayout)
}

// mergeRange adds r to ranges. Ranges with the same reason that overlap or
// touch are merged into one; ranges with different reasons are kept apart.
func mergeRange(ranges []model.DateRange, r model.DateRange) []model.DateRange {
	all := append(append([]model.DateRange(nil), ranges...), r)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].From == all[j].From {
			return all[i].To < all[j].To
		}
		return all[i].From < all[j].From
	})

	out := make([]model.DateRange, 0, len(all))
	for _, cur := range all {
		merged := false
		for i := range out {
			prev := &out[i]
			if prev.Reason != cur.Reason {
				continue
			}
			if cur.From <= shiftDate(prev.To, 1) && prev.From <= shiftDate(cur.To, 1) {
				if cur.From < prev.From {
					prev.From = cur.From
				}
				if cur.To > prev.To {
					prev.To = cur.To
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, cur)
		}
	}
	return out
}

// clearRange removes the days in c from every range, trimming ranges that
// stick out on one side and splitting ranges that contain c.
func clearRange(ranges []model.DateRange, c model.DateRange) []model.DateRange {
	out := make([]model.DateRange, 0, len(ranges)+1)
	for _, r := range ranges {
		if r.To < c.From || r.From > c.To {
			out = append(out, r)
			continue
		}
		if r.From < c.From {
			out = append(out, model.DateRange{From: r.From, To: shiftDate(c.From, -1), Reason: r.Reason})
		}
		if r.To > c.To {
			out = append(out, model.DateRange{From: shiftDate(c.To, 1), To: r.To, Reason: r.Reason})
		}
	}
	return out
}
