package world

import "cityflow.sim/internal/sim/tuning"

// Clock converts absolute ticks into time-of-day and commute windows.
type Clock struct {
	DayTicks int
}

func (c Clock) TickOfDay(tick uint64) int {
	return int(tick % uint64(c.DayTicks))
}

func (c Clock) Hour(tick uint64) float64 {
	return float64(c.TickOfDay(tick)) / float64(c.DayTicks) * 24
}

func (c Clock) hourToTick(hour int) int {
	return hour * c.DayTicks / 24
}

// MorningWindow returns the [start, end) tick-of-day bounds of the morning
// commute.
func (c Clock) MorningWindow(t *tuning.Tuning) (int, int) {
	return c.hourToTick(t.MorningStartHour), c.hourToTick(t.MorningEndHour)
}

func (c Clock) EveningWindow(t *tuning.Tuning) (int, int) {
	return c.hourToTick(t.EveningStartHour), c.hourToTick(t.EveningEndHour)
}

func (c Clock) InMorning(tick uint64, t *tuning.Tuning) bool {
	lo, hi := c.MorningWindow(t)
	tod := c.TickOfDay(tick)
	return tod >= lo && tod < hi
}

func (c Clock) InEvening(tick uint64, t *tuning.Tuning) bool {
	lo, hi := c.EveningWindow(t)
	tod := c.TickOfDay(tick)
	return tod >= lo && tod < hi
}
