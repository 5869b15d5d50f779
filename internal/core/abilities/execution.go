package abilities

import (
	"sync"

	"github.com/zeusync/tickloop/internal/core/loop"
)

var _ loop.Updatable = (*Execution)(nil)

// Execution is one cast of an Ability. It is attached to the scheduler it was
// cast on and detaches itself once every effect has been applied.
type Execution struct {
	ability   *Ability
	scheduler loop.Scheduler
	tick      int64
	effects   []Effect

	mu      sync.Mutex
	applied []bool
	pending int
}

func newExecution(a *Ability, s loop.Scheduler, effects []Effect) *Execution {
	return &Execution{
		ability:   a,
		scheduler: s,
		tick:      s.Ticks(),
		effects:   effects,
		applied:   make([]bool, len(effects)),
		pending:   len(effects),
	}
}

func (e *Execution) Ability() *Ability { return e.ability }

// Tick is the loop tick the cast happened on.
func (e *Execution) Tick() int64 { return e.tick }

func (e *Execution) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending == 0
}

// Applied returns the effects applied so far, in declaration order.
func (e *Execution) Applied() []Effect {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Effect, 0, len(e.effects)-e.pending)
	for i, ok := range e.applied {
		if ok {
			out = append(out, e.effects[i])
		}
	}
	return out
}

func (e *Execution) Update(c loop.Clock) {
	elapsed := c.Since(e.tick)

	var due []Effect
	e.mu.Lock()
	for i, eff := range e.effects {
		if e.applied[i] || elapsed < eff.Delay() {
			continue
		}
		e.applied[i] = true
		e.pending--
		due = append(due, eff)
	}
	done := e.pending == 0
	e.mu.Unlock()

	for _, eff := range due {
		eff.Apply(c, e)
	}
	if done {
		e.scheduler.Detach(e)
	}
}
