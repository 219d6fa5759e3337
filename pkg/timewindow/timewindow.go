// Package timewindow holds the pure time arithmetic shared by holds,
// admission and availability: operating hours, the same-day rule,
// half-open overlap and the fixed slot grid.
package timewindow

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidClock = errors.New("time of day must be in HH:MM 24-hour format")
	ErrInvalidHours = errors.New("closing time must be after opening time")
	ErrInvalidStep  = errors.New("slot step must be positive")
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) Overlaps(other Window) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End)
}

// Overlaps reports whether [start1,end1) and [start2,end2) intersect.
// Touching windows (end1 == start2) do not overlap.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}

// Hours are the daily operating hours of every facility, stored as
// minutes since local midnight.
type Hours struct {
	Open  int
	Close int
}

func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func ParseHours(open, close string) (Hours, error) {
	o, err := ParseClock(open)
	if err != nil {
		return Hours{}, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return Hours{}, err
	}
	if c <= o {
		return Hours{}, fmt.Errorf("%w: %s-%s", ErrInvalidHours, open, close)
	}
	return Hours{Open: o, Close: c}, nil
}

func (h Hours) String() string {
	return FormatClock(h.Open) + "-" + FormatClock(h.Close)
}

// Contains reports whether both instants fall inside the operating hours
// of their own calendar day in loc. The end may equal closing time.
func (h Hours) Contains(start, end time.Time, loc *time.Location) bool {
	s := start.In(loc)
	e := end.In(loc)
	startMin := minuteOfDay(s)
	endMin := minuteOfDay(e)
	if startMin < h.Open || startMin >= h.Close {
		return false
	}
	if endMin <= h.Open || endMin > h.Close {
		return false
	}
	// sub-minute remainders past closing still count as outside
	if endMin == h.Close && (e.Second() != 0 || e.Nanosecond() != 0) {
		return false
	}
	return true
}

// OnDate returns the operating window for the calendar day of date in loc.
// Opening and closing are wall-clock times, so on a DST change the window
// is an hour shorter or longer than Close-Open.
func (h Hours) OnDate(date time.Time, loc *time.Location) Window {
	y, m, d := date.In(loc).Date()
	return Window{
		Start: time.Date(y, m, d, h.Open/60, h.Open%60, 0, 0, loc),
		End:   time.Date(y, m, d, h.Close/60, h.Close%60, 0, 0, loc),
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SameDay reports whether start and end share a calendar day in loc.
// An end at exactly midnight belongs to the next day.
func SameDay(start, end time.Time, loc *time.Location) bool {
	s := start.In(loc)
	e := end.In(loc)
	sy, sm, sd := s.Date()
	ey, em, ed := e.Date()
	return sy == ey && sm == em && sd == ed
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayBounds returns [00:00, next day 00:00) for the day of t in loc.
func DayBounds(t time.Time, loc *time.Location) Window {
	start := StartOfDay(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// FormatDate renders the calendar day of t in loc as YYYY-MM-DD.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Grid splits the operating hours of date into consecutive step-sized
// windows. The windows tile [open, close) exactly; when the span is not a
// multiple of step the last window is shortened to end at closing time.
func Grid(date time.Time, hours Hours, step time.Duration, loc *time.Location) ([]Window, error) {
	if step <= 0 {
		return nil, ErrInvalidStep
	}
	day := hours.OnDate(date, loc)
	slots := make([]Window, 0, int(day.Duration()/step)+1)
	for cursor := day.Start; cursor.Before(day.End); cursor = cursor.Add(step) {
		end := cursor.Add(step)
		if end.After(day.End) {
			end = day.End
		}
		slots = append(slots, Window{Start: cursor, End: end})
	}
	return slots, nil
}
