package tool

import (
	"testing"
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
)

func day(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2026, 9, 1, hour, minute, 0, 0, time.UTC)
}

func TestFreeIntervalsEmptyCalendar(t *testing.T) {
	t.Parallel()

	window := workWindow(day(t, 0, 0))
	free := freeIntervals(nil, window, 1, time.Hour)
	if len(free) != 1 {
		t.Fatalf("expected the whole day, got %#v", free)
	}
	if !free[0].Start.Equal(window.Start) || !free[0].End.Equal(window.End) {
		t.Fatalf("unexpected interval: %#v", free[0])
	}
}

func TestFreeIntervalsSplitsAroundBusyBlock(t *testing.T) {
	t.Parallel()

	window := workWindow(day(t, 0, 0))
	busy := []contractx.Interval{{Start: day(t, 13, 0), End: day(t, 14, 30)}}
	free := freeIntervals(busy, window, 1, time.Hour)
	if len(free) != 2 {
		t.Fatalf("expected 2 intervals, got %#v", free)
	}
	if !free[0].End.Equal(day(t, 13, 0)) || !free[1].Start.Equal(day(t, 14, 30)) {
		t.Fatalf("split misplaced: %#v", free)
	}
}

func TestFreeIntervalsRespectsCapacity(t *testing.T) {
	t.Parallel()

	// Two specialists, only one of them busy: the slot stays available.
	window := workWindow(day(t, 0, 0))
	busy := []contractx.Interval{{Start: day(t, 13, 0), End: day(t, 14, 0)}}
	free := freeIntervals(busy, window, 2, time.Hour)
	if len(free) != 1 {
		t.Fatalf("expected the whole day with capacity 2, got %#v", free)
	}

	// Both busy at the same time: the slot disappears.
	busy = append(busy, contractx.Interval{Start: day(t, 13, 0), End: day(t, 14, 0)})
	free = freeIntervals(busy, window, 2, time.Hour)
	if len(free) != 2 {
		t.Fatalf("expected a split with capacity saturated, got %#v", free)
	}
}

func TestFreeIntervalsFiltersShortGaps(t *testing.T) {
	t.Parallel()

	window := workWindow(day(t, 0, 0))
	busy := []contractx.Interval{
		{Start: day(t, 10, 30), End: day(t, 19, 30)},
	}
	// The remaining 30-minute edges cannot fit a one-hour service.
	free := freeIntervals(busy, window, 1, time.Hour)
	if len(free) != 0 {
		t.Fatalf("expected no fitting interval, got %#v", free)
	}
}

func TestAdjustForTodayRoundsUp(t *testing.T) {
	t.Parallel()

	now := day(t, 12, 40)
	window := adjustForToday(workWindow(now), now)
	// 12:40 + 1h = 13:40, rounded up to 14:00.
	if !window.Start.Equal(day(t, 14, 0)) {
		t.Fatalf("unexpected adjusted start: %s", window.Start)
	}
}

func TestAdjustForTodayOtherDayUntouched(t *testing.T) {
	t.Parallel()

	now := day(t, 12, 40)
	tomorrow := workWindow(now.AddDate(0, 0, 1))
	window := adjustForToday(tomorrow, now)
	if !window.Start.Equal(tomorrow.Start) {
		t.Fatalf("other day must not be adjusted: %s", window.Start)
	}
}

func TestFormatIntervals(t *testing.T) {
	t.Parallel()

	got := formatIntervals([]contractx.Interval{
		{Start: day(t, 10, 0), End: day(t, 13, 0)},
		{Start: day(t, 14, 30), End: day(t, 20, 0)},
	})
	want := "from 10:00 to 13:00 and from 14:30 to 20:00"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if formatIntervals(nil) != "" {
		t.Fatal("empty input must format to empty string")
	}
}
