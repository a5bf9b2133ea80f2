// Package availability computes the bookable slot grid from the busy-calendar
// feed and locally stored bookings.
package availability

import (
	"time"

	"github.com/praxisbook/booking/internal/ics"
)

// SlotDuration is the grid granularity. Longer appointments occupy multiple
// adjacent grid slots.
const SlotDuration = 30 * time.Minute

// Working hours: half-hour starts from 08:00 through 17:30, Monday-Saturday.
const (
	workDayStartHour = 8
	workDayEndHour   = 18
)

// Slot is one candidate appointment start time on the half-hour grid.
type Slot struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

type gridTime struct {
	hour, min int
}

var gridTimes = buildGrid()

func buildGrid() []gridTime {
	var g []gridTime
	for h := workDayStartHour; h < workDayEndHour; h++ {
		g = append(g, gridTime{h, 0}, gridTime{h, 30})
	}
	return g
}

// Generate produces one slot per (working day, grid time) pair in
// [from, to), marked available unless an active booking occupies the exact
// start time or a busy event overlaps the slot's half-hour interval.
// Sundays are skipped. Slots are grouped by day; callers needing
// chronological order across the whole range must sort.
//
// Generate is a pure function of its inputs: identical busy and booked sets
// yield an identical slot list.
func Generate(from, to time.Time, busy []ics.Event, booked []time.Time) []Slot {
	bookedSet := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		bookedSet[b.Unix()] = struct{}{}
	}

	loc := from.Location()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	var slots []Slot
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Sunday {
			continue
		}
		for _, gt := range gridTimes {
			start := time.Date(day.Year(), day.Month(), day.Day(), gt.hour, gt.min, 0, 0, loc)
			slots = append(slots, Slot{
				Start:     start,
				Available: slotFree(start, busy, bookedSet),
			})
		}
	}
	return slots
}

func slotFree(start time.Time, busy []ics.Event, bookedSet map[int64]struct{}) bool {
	if _, taken := bookedSet[start.Unix()]; taken {
		return false
	}
	return !Overlaps(start, start.Add(SlotDuration), busy)
}

// Overlaps reports whether [start, end) intersects any busy event. An event
// not aligned to the half-hour grid still blocks every grid slot it touches:
// the slot is blocked when its start falls inside the event, its end falls
// inside the event, or it fully contains the event.
func Overlaps(start, end time.Time, busy []ics.Event) bool {
	for _, ev := range busy {
		if start.Before(ev.End) && ev.Start.Before(end) {
			return true
		}
	}
	return false
}

// OnGrid reports whether t is a valid slot start: aligned to the half-hour
// grid, inside working hours and not on a Sunday.
func OnGrid(t time.Time) bool {
	if t.Weekday() == time.Sunday {
		return false
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	if t.Minute() != 0 && t.Minute() != 30 {
		return false
	}
	return t.Hour() >= workDayStartHour && t.Hour() < workDayEndHour
}
