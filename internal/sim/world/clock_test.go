package world

import (
	"math"
	"testing"
)

func TestClock_TickOfDayAndHour(t *testing.T) {
	c := Clock{DayTicks: 2400}
	if got := c.TickOfDay(2400); got != 0 {
		t.Fatalf("TickOfDay(2400) = %d, want 0", got)
	}
	if got := c.TickOfDay(2400*3 + 17); got != 17 {
		t.Fatalf("TickOfDay = %d, want 17", got)
	}
	if got := c.Hour(1200); math.Abs(got-12) > 1e-9 {
		t.Fatalf("Hour(1200) = %v, want 12", got)
	}
}

func TestClock_CommuteWindows(t *testing.T) {
	c := Clock{DayTicks: 2400}
	tn := testTuning()

	lo, hi := c.MorningWindow(tn)
	if lo != 700 || hi != 900 {
		t.Fatalf("morning window = [%d,%d), want [700,900)", lo, hi)
	}

	cases := []struct {
		tick uint64
		in   bool
	}{
		{699, false},
		{700, true},
		{899, true},
		{900, false},
		{2400 + 700, true}, // next day
	}
	for _, tc := range cases {
		if got := c.InMorning(tc.tick, tn); got != tc.in {
			t.Fatalf("InMorning(%d) = %v, want %v", tc.tick, got, tc.in)
		}
	}

	lo, hi = c.EveningWindow(tn)
	if lo != 1600 || hi != 1900 {
		t.Fatalf("evening window = [%d,%d), want [1600,1900)", lo, hi)
	}
	if c.InMorning(1650, tn) || !c.InEvening(1650, tn) {
		t.Fatalf("1650 should be evening only")
	}
}
