// Package states provides a tick-driven finite state machine. A Machine is
// an Updatable: attach it to a loop and it runs the current state's behavior
// and evaluates its transitions once per tick.
package states

import "github.com/zeusync/tickloop/internal/core/loop"

// State is one node of a Machine.
type State interface {
	Enter()
	Exit()
	// Execute runs the per-tick behavior while the state is current.
	Execute(c loop.Clock)
	// Transitions lists the outgoing transitions. The machine sorts a copy;
	// the returned slice is not modified.
	Transitions() []Transition
}

// Transition moves the machine to Next when Fulfilled holds. Lower priorities
// are evaluated first.
type Transition interface {
	Priority() int
	Next() State
	Fulfilled(c loop.Clock) bool
}

// Condition is a transition predicate over the clock.
type Condition func(c loop.Clock) bool

type transition struct {
	priority int
	next     State
	cond     Condition
}

func (t *transition) Priority() int { return t.priority }
func (t *transition) Next() State   { return t.next }
func (t *transition) Fulfilled(c loop.Clock) bool {
	return t.cond != nil && t.cond(c)
}

func NewTransition(priority int, next State, cond Condition) Transition {
	return &transition{priority: priority, next: next, cond: cond}
}

// BasicState is a State assembled from optional hook functions.
type BasicState struct {
	name        string
	onEnter     func()
	onExit      func()
	behavior    func(c loop.Clock)
	transitions []Transition
}

type StateOption func(*BasicState)

func OnEnter(fn func()) StateOption {
	return func(s *BasicState) { s.onEnter = fn }
}

func OnExit(fn func()) StateOption {
	return func(s *BasicState) { s.onExit = fn }
}

func OnExecute(fn func(c loop.Clock)) StateOption {
	return func(s *BasicState) { s.behavior = fn }
}

func NewState(name string, opts ...StateOption) *BasicState {
	s := &BasicState{name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BasicState) Name() string { return s.name }

func (s *BasicState) String() string { return s.name }

func (s *BasicState) Enter() {
	if s.onEnter != nil {
		s.onEnter()
	}
}

func (s *BasicState) Exit() {
	if s.onExit != nil {
		s.onExit()
	}
}

func (s *BasicState) Execute(c loop.Clock) {
	if s.behavior != nil {
		s.behavior(c)
	}
}

func (s *BasicState) Transitions() []Transition {
	return s.transitions
}

// AddTransition appends t. Transitions with equal priority keep the order
// they were added in.
func (s *BasicState) AddTransition(t Transition) *BasicState {
	if t != nil {
		s.transitions = append(s.transitions, t)
	}
	return s
}

// When is shorthand for AddTransition(NewTransition(priority, next, cond)).
func (s *BasicState) When(priority int, next State, cond Condition) *BasicState {
	return s.AddTransition(NewTransition(priority, next, cond))
}
