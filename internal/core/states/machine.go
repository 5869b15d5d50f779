package states

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/observability/log"
)

var _ loop.Updatable = (*Machine)(nil)

// Machine holds at most one current State. Hooks run on the goroutine that
// calls SetState or Update, normally the loop goroutine.
type Machine struct {
	mu           sync.RWMutex
	current      State
	logger       log.Log
	onTransition []func(from, to State)
}

type MachineOption func(*Machine)

func WithLogger(logger log.Log) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTransitionListener is called after every state change, including SetState.
func WithTransitionListener(fn func(from, to State)) MachineOption {
	return func(m *Machine) {
		if fn != nil {
			m.onTransition = append(m.onTransition, fn)
		}
	}
}

func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{logger: log.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetState exits the current state, if any, then enters next. A nil next
// leaves the machine without a current state.
func (m *Machine) SetState(next State) {
	m.switchTo(next)
}

// Update runs one tick: the current state's behavior, then the first of its
// transitions, by ascending priority, whose condition holds.
func (m *Machine) Update(c loop.Clock) {
	current := m.Current()
	if current == nil {
		return
	}

	current.Execute(c)

	transitions := slices.Clone(current.Transitions())
	slices.SortStableFunc(transitions, func(a, b Transition) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})

	for _, t := range transitions {
		if t == nil || !t.Fulfilled(c) {
			continue
		}
		m.logger.Debug("state transition",
			log.String("from", stateName(current)),
			log.String("to", stateName(t.Next())),
			log.Int("priority", t.Priority()),
			log.Int64("tick", c.Ticks()),
		)
		m.switchTo(t.Next())
		return
	}
}

func (m *Machine) switchTo(next State) {
	prev := m.Current()
	if prev != nil {
		prev.Exit()
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	if next != nil {
		next.Enter()
	}
	for _, fn := range m.onTransition {
		fn(prev, next)
	}
}

func stateName(s State) string {
	switch v := s.(type) {
	case nil:
		return "<nil>"
	case interface{ Name() string }:
		return v.Name()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%T", s)
	}
}
