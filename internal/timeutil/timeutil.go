package timeutil

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

const (
	HourLabelLayout = "15:04"
	DayLabelLayout  = "2006-01-02"
)

// Window represents a normalized rolling time window anchored to a location.
type Window struct {
	period string
	start  time.Time
	end    time.Time
	loc    *time.Location
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// NewWindow constructs a rolling window for the requested period (e.g., "7d", "24h").
func NewWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	now = now.In(loc)
	dur, err := durationFromPeriod(period)
	if err != nil {
		return Window{}, err
	}
	return Window{
		period: normalizePeriod(period),
		start:  now.Add(-dur),
		end:    now,
		loc:    loc,
	}, nil
}

// Period returns the normalized period string (e.g., "7d").
func (w Window) Period() string { return w.period }

// Start returns the inclusive start of the window.
func (w Window) Start() time.Time { return w.start }

// End returns the exclusive end of the window.
func (w Window) End() time.Time { return w.end }

// Location returns the reporting timezone for the window.
func (w Window) Location() *time.Location { return EnsureLocation(w.loc) }

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.end.Sub(w.start) }

// Contains reports whether the timestamp falls within [start, end).
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.start) && ts.Before(w.end)
}

// Hourly reports whether the window is short enough to be charted by hour of day.
func (w Window) Hourly() bool { return w.Duration() <= 24*time.Hour }

// HourSlots returns the starts of the 24 distinct hours ending at the
// window's final hour. Across a DST change two slots may share a label.
func (w Window) HourSlots() []time.Time {
	last := TruncateToHour(w.end, w.Location())
	slots := make([]time.Time, 0, 24)
	for i := 23; i >= 0; i-- {
		slots = append(slots, last.Add(-time.Duration(i)*time.Hour))
	}
	return slots
}

// SlotLabels returns the dense, ordered slot labels covering the window: the
// 24 hours of day ending at the window's final hour for hourly windows, or one
// calendar date per day from start to end inclusive.
func (w Window) SlotLabels() []string {
	loc := w.Location()
	if w.Hourly() {
		slots := w.HourSlots()
		labels := make([]string, 0, len(slots))
		for _, slot := range slots {
			labels = append(labels, HourLabel(slot, loc))
		}
		return labels
	}
	first := TruncateToDay(w.start, loc)
	days := DaysBetween(w.start, w.end, loc)
	labels := make([]string, 0, days+1)
	for i := 0; i <= days; i++ {
		labels = append(labels, DayLabel(first.AddDate(0, 0, i), loc))
	}
	return labels
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// TruncateToHour normalizes the timestamp to the top of its hour in the provided zone.
// A repeated DST hour keeps its own instant.
func TruncateToHour(t time.Time, loc *time.Location) time.Time {
	t = t.In(EnsureLocation(loc))
	into := time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
	return t.Add(-into)
}

// DaysBetween counts calendar-day boundaries crossed from start to end in loc.
func DaysBetween(start, end time.Time, loc *time.Location) int {
	a := TruncateToDay(start, loc)
	b := TruncateToDay(end, loc)
	if b.Before(a) {
		return 0
	}
	// Calendar arithmetic keeps DST days from skewing the count.
	days := 0
	for d := a; d.Before(b); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// HourLabel renders the hour-of-day slot label ("09:00").
func HourLabel(t time.Time, loc *time.Location) string {
	return TruncateToHour(t, loc).Format(HourLabelLayout)
}

// DayLabel renders the calendar-date slot label ("2024-05-10").
func DayLabel(t time.Time, loc *time.Location) string {
	return t.In(EnsureLocation(loc)).Format(DayLabelLayout)
}

func durationFromPeriod(period string) (time.Duration, error) {
	p := normalizePeriod(period)
	if len(p) < 2 {
		return 0, ErrInvalidPeriod
	}
	unit := p[len(p)-1]
	value, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidPeriod
	}
	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, ErrInvalidPeriod
	}
}

func normalizePeriod(period string) string {
	return strings.ToLower(strings.TrimSpace(period))
}
