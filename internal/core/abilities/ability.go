// Package abilities implements cooldown-gated abilities whose effects are
// applied over logical time by the loop.
package abilities

import (
	"slices"
	"sync"

	"github.com/zeusync/tickloop/internal/core/loop"
)

// Ability can be cast once its cooldown has elapsed since the previous cast.
// Cooldown is measured in tick-based milliseconds, so it stretches when the
// loop's time scale drops and freezes while the loop is paused.
type Ability struct {
	name     string
	cooldown int64

	mu        sync.Mutex
	effects   []Effect
	current   *Execution
	lastCast  int64
	cast      bool
	onCast    []func(*Execution)
	onReady   []func(*Ability)
	readyTask loop.Handle
}

func NewAbility(name string, cooldownMs int64, effects ...Effect) *Ability {
	a := &Ability{name: name, cooldown: max(cooldownMs, 0)}
	for _, e := range effects {
		a.AddEffect(e)
	}
	return a
}

func (a *Ability) Name() string { return a.name }

// Cooldown in milliseconds.
func (a *Ability) Cooldown() int64 { return a.cooldown }

func (a *Ability) AddEffect(e Effect) {
	if e == nil {
		return
	}
	a.mu.Lock()
	a.effects = append(a.effects, e)
	a.mu.Unlock()
}

func (a *Ability) Effects() []Effect {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.effects)
}

// Current is the most recent execution, nil before the first cast.
func (a *Ability) Current() *Execution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// OnCast registers fn to be called with every new execution.
func (a *Ability) OnCast(fn func(*Execution)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.onCast = append(a.onCast, fn)
	a.mu.Unlock()
}

// OnCooldownReady registers fn to be called from the loop when the cooldown
// started by a cast has elapsed.
func (a *Ability) OnCooldownReady(fn func(*Ability)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.onReady = append(a.onReady, fn)
	a.mu.Unlock()
}

func (a *Ability) CanCast(c loop.Clock) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canCast(c)
}

func (a *Ability) canCast(c loop.Clock) bool {
	return !a.cast || c.Since(a.lastCast) >= a.cooldown
}

// RemainingCooldown is the number of milliseconds until the ability can be cast again.
func (a *Ability) RemainingCooldown(c loop.Clock) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.canCast(c) {
		return 0
	}
	return a.cooldown - c.Since(a.lastCast)
}

// Cast starts a new Execution on s. The execution is attached to s and
// applies its effects from the next dispatch on.
func (a *Ability) Cast(s loop.Scheduler) (*Execution, error) {
	if s == nil {
		return nil, ErrNoScheduler
	}

	a.mu.Lock()
	if !a.canCast(s) {
		a.mu.Unlock()
		return nil, ErrOnCooldown
	}
	exec := newExecution(a, s, slices.Clone(a.effects))
	a.current = exec
	a.lastCast = exec.tick
	a.cast = a.cooldown > 0
	if a.cast && len(a.onReady) > 0 {
		if a.readyTask != 0 {
			s.Cancel(a.readyTask)
		}
		a.readyTask = s.Schedule(a.cooldown, a.cooldownElapsed)
	}
	consumers := slices.Clone(a.onCast)
	a.mu.Unlock()

	s.Attach(exec)
	for _, fn := range consumers {
		fn(exec)
	}
	return exec, nil
}

// ResetCooldown ends the running cooldown. A pending ready notification is
// moved to the current tick instead of being dropped.
func (a *Ability) ResetCooldown(s loop.Scheduler) {
	a.mu.Lock()
	a.cast = false
	task := a.readyTask
	a.mu.Unlock()

	if task != 0 && s != nil {
		s.Reschedule(task, s.Ticks())
	}
}

func (a *Ability) cooldownElapsed(h loop.Handle) {
	a.mu.Lock()
	if a.readyTask != h {
		a.mu.Unlock()
		return
	}
	a.readyTask = 0
	consumers := slices.Clone(a.onReady)
	a.mu.Unlock()

	for _, fn := range consumers {
		fn(a)
	}
}
