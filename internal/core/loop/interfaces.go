// Package loop implements the fixed-rate tick scheduler: the Updatable
// registry, the timed action queue, the rate tracker and the loop that drives
// them.
package loop

import "reflect"

// Clock is the read-only view of logical time handed to every Updatable.
//
// Millisecond values are tick based: they are derived from the tick count at
// the configured update rate and do not depend on the time scale.
type Clock interface {
	// Ticks is the number of logical ticks processed since the loop was created.
	Ticks() int64
	// DeltaTime is the wall-clock milliseconds consumed by the last completed
	// iteration, pacing sleep included.
	DeltaTime() int64
	// Since is the tick-based milliseconds elapsed since the given tick.
	Since(tick int64) int64
	MsToTicks(ms int64) int64
	TicksToMs(ticks int64) int64
	UpdateRate() int
	TimeScale() float64
}

// Updatable receives one notification per logical tick, always on the loop
// goroutine. An Update call runs to completion before the next Updatable in
// the same dispatch is notified.
type Updatable interface {
	Update(c Clock)
}

// Handle identifies a scheduled timed action. Handles are assigned from 1 by
// each queue and never reused.
type Handle uint64

// Action is the callback of a timed action. It receives its own handle.
type Action func(h Handle)

// Scheduler is the contract collaborators depend on.
type Scheduler interface {
	Clock

	Attach(u Updatable)
	Detach(u Updatable)

	Schedule(delayMs int64, fn Action) Handle
	Reschedule(h Handle, targetTick int64)
	Cancel(h Handle) bool

	SetTimeScale(scale float64) error
	OnRateSampled(fn func(updates int)) (cancel func())
	Terminate()
}

type updateFunc struct {
	fn func(c Clock)
}

func (u *updateFunc) Update(c Clock) { u.fn(c) }

// UpdateFunc adapts a function to Updatable. Every call returns a distinct
// instance, so two UpdateFunc values never collide in a registry.
func UpdateFunc(fn func(c Clock)) Updatable {
	return &updateFunc{fn: fn}
}

// registrable reports whether u can be tracked by identity: it must be
// non-nil (including typed nil pointers) and its dynamic value, interface
// fields included, must be comparable.
func registrable(u Updatable) bool {
	if u == nil {
		return false
	}
	v := reflect.ValueOf(u)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return false
		}
	}
	return v.Comparable()
}
