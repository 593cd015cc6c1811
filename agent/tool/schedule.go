package tool

import (
	"fmt"
	"sort"
	"strings"
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// Salon working hours. Bookings outside this window are rejected.
const (
	workStartHour = 10
	workEndHour   = 20
)

// sameDayLeadTime is the minimum notice for a booking on the current day,
// rounded up to the next half hour.
const sameDayLeadTime = time.Hour

func workWindow(day time.Time) contractx.Interval {
	y, m, d := day.Date()
	loc := day.Location()
	return contractx.Interval{
		Start: time.Date(y, m, d, workStartHour, 0, 0, 0, loc),
		End:   time.Date(y, m, d, workEndHour, 0, 0, 0, loc),
	}
}

// adjustForToday moves the window start past now plus the lead time when the
// requested day is the current day.
func adjustForToday(window contractx.Interval, now time.Time) contractx.Interval {
	if window.Start.Year() != now.Year() || window.Start.YearDay() != now.YearDay() {
		return window
	}
	min := now.Add(sameDayLeadTime)
	rounded := min.Truncate(30 * time.Minute)
	if rounded.Before(min) {
		rounded = rounded.Add(30 * time.Minute)
	}
	if rounded.After(window.Start) {
		window.Start = rounded
	}
	return window
}

// freeIntervals finds the sub-intervals of window where fewer than capacity
// busy blocks overlap and that are long enough for minDuration. The sweep
// walks a sorted timeline of busy-count changes.
func freeIntervals(busy []contractx.Interval, window contractx.Interval, capacity int, minDuration time.Duration) []contractx.Interval {
	if capacity <= 0 || !window.Start.Before(window.End) {
		return nil
	}

	type event struct {
		at    time.Time
		delta int
	}
	events := []event{{at: window.Start}, {at: window.End}}
	for _, b := range busy {
		s, e := b.Start, b.End
		if s.Before(window.Start) {
			s = window.Start
		}
		if e.After(window.End) {
			e = window.End
		}
		if s.Before(e) {
			events = append(events, event{at: s, delta: 1}, event{at: e, delta: -1})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].delta > events[j].delta
	})

	var (
		free         []contractx.Interval
		busyCount    int
		segmentStart time.Time
		haveSegment  bool
		prev         time.Time
		havePrev     bool
	)
	for _, ev := range events {
		if havePrev && prev.Before(ev.at) {
			if busyCount < capacity {
				if !haveSegment {
					segmentStart = prev
					haveSegment = true
				}
			} else if haveSegment {
				free = append(free, contractx.Interval{Start: segmentStart, End: prev})
				haveSegment = false
			}
		}
		busyCount += ev.delta
		prev = ev.at
		havePrev = true
	}
	if haveSegment && segmentStart.Before(window.End) {
		free = append(free, contractx.Interval{Start: segmentStart, End: window.End})
	}

	var fitting []contractx.Interval
	for _, iv := range free {
		if iv.End.Sub(iv.Start) >= minDuration {
			fitting = append(fitting, iv)
		}
	}
	return fitting
}

// formatIntervals renders free intervals as a readable list of time ranges.
func formatIntervals(intervals []contractx.Interval) string {
	if len(intervals) == 0 {
		return ""
	}
	parts := make([]string, len(intervals))
	for i, iv := range intervals {
		parts[i] = fmt.Sprintf("from %s to %s", iv.Start.Format("15:04"), iv.End.Format("15:04"))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func overlaps(a, b contractx.Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
