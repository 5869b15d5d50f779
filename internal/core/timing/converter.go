// Package timing holds the pure tick/millisecond conversions and the wall
// clocks the scheduler paces itself against.
package timing

import "math"

// Converter translates between milliseconds and logical ticks for a fixed
// update rate (ticks per second). It is a value type and safe for concurrent use.
type Converter struct {
	UpdateRate int
}

func NewConverter(updateRate int) Converter {
	return Converter{UpdateRate: updateRate}
}

// TicksPerMs is the number of ticks in one millisecond.
func (c Converter) TicksPerMs() float64 {
	return float64(c.UpdateRate) / 1000.0
}

// MsToTicks returns round(updateRate / 1000 * ms).
func (c Converter) MsToTicks(ms int64) int64 {
	return int64(math.Round(c.TicksPerMs() * float64(ms)))
}

// TicksToMs returns round(ticks / (updateRate / 1000)). A zero rate yields 0.
func (c Converter) TicksToMs(ticks int64) int64 {
	perMs := c.TicksPerMs()
	if perMs == 0 {
		return 0
	}
	return int64(math.Round(float64(ticks) / perMs))
}

// TickMs is the wall-clock length of one tick in milliseconds at time scale 1.
func (c Converter) TickMs() float64 {
	if c.UpdateRate <= 0 {
		return 0
	}
	return 1000.0 / float64(c.UpdateRate)
}
