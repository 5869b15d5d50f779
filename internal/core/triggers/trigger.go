// Package triggers polls conditions once per tick and reports their edges.
package triggers

import (
	"slices"
	"sync"

	"github.com/zeusync/tickloop/internal/core/loop"
)

// Condition is evaluated on the loop goroutine once per tick.
type Condition func(c loop.Clock) bool

// Event describes an activation edge.
type Event struct {
	Trigger *Trigger
	Tick    int64
}

type Option func(*Trigger)

// Once detaches the trigger after its first activation.
func Once() Option {
	return func(t *Trigger) { t.once = true }
}

// OnActivated registers a consumer for rising edges.
func OnActivated(fn func(Event)) Option {
	return func(t *Trigger) {
		if fn != nil {
			t.activated = append(t.activated, fn)
		}
	}
}

// OnDeactivated registers a consumer for falling edges.
func OnDeactivated(fn func(Event)) Option {
	return func(t *Trigger) {
		if fn != nil {
			t.deactivated = append(t.deactivated, fn)
		}
	}
}

// OnActivating registers a guard. A rising edge is ignored when any guard
// returns false, and the condition is evaluated again next tick.
func OnActivating(fn func(Event) bool) Option {
	return func(t *Trigger) {
		if fn != nil {
			t.guards = append(t.guards, fn)
		}
	}
}

// Trigger is an Updatable. Attach it with Attach so that Once triggers can
// detach themselves.
type Trigger struct {
	name string
	cond Condition
	once bool

	mu          sync.Mutex
	scheduler   loop.Scheduler
	active      bool
	activations int
	activated   []func(Event)
	deactivated []func(Event)
	guards      []func(Event) bool
}

var _ loop.Updatable = (*Trigger)(nil)

func New(name string, cond Condition, opts ...Option) *Trigger {
	t := &Trigger{name: name, cond: cond}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trigger) Name() string { return t.name }

func (t *Trigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Activations counts rising edges so far.
func (t *Trigger) Activations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activations
}

// Attach registers t with s.
func (t *Trigger) Attach(s loop.Scheduler) {
	t.mu.Lock()
	t.scheduler = s
	t.mu.Unlock()
	s.Attach(t)
}

// Detach removes t from the scheduler it was attached to. The active flag is
// kept.
func (t *Trigger) Detach() {
	t.mu.Lock()
	s := t.scheduler
	t.scheduler = nil
	t.mu.Unlock()
	if s != nil {
		s.Detach(t)
	}
}

func (t *Trigger) Update(c loop.Clock) {
	if t.cond == nil {
		return
	}
	now := t.cond(c)
	ev := Event{Trigger: t, Tick: c.Ticks()}

	t.mu.Lock()
	was := t.active
	guards := slices.Clone(t.guards)
	t.mu.Unlock()

	switch {
	case now && !was:
		for _, g := range guards {
			if !g(ev) {
				return
			}
		}
		t.mu.Lock()
		t.active = true
		t.activations++
		consumers := slices.Clone(t.activated)
		t.mu.Unlock()
		for _, fn := range consumers {
			fn(ev)
		}
		if t.once {
			t.Detach()
		}
	case !now && was:
		t.mu.Lock()
		t.active = false
		consumers := slices.Clone(t.deactivated)
		t.mu.Unlock()
		for _, fn := range consumers {
			fn(ev)
		}
	}
}
