package states

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/tickloop/internal/core/loop"
)

// Definition describes a state graph by name, e.g.
//
//	initial: idle
//	states:
//	  idle:
//	    behavior: wander
//	    transitions:
//	      - to: chase
//	        priority: 1
//	        when: target_visible
//	  chase:
//	    enter: start_chase
//	    transitions:
//	      - to: idle
//	        when: target_lost
type Definition struct {
	Initial string                     `json:"initial" yaml:"initial"`
	States  map[string]StateDefinition `json:"states" yaml:"states"`
}

type StateDefinition struct {
	Enter       string                 `json:"enter,omitempty" yaml:"enter,omitempty"`
	Exit        string                 `json:"exit,omitempty" yaml:"exit,omitempty"`
	Behavior    string                 `json:"behavior,omitempty" yaml:"behavior,omitempty"`
	Transitions []TransitionDefinition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

type TransitionDefinition struct {
	To       string `json:"to" yaml:"to"`
	Priority int    `json:"priority" yaml:"priority"`
	When     string `json:"when" yaml:"when"`
}

// LoadDefinition decodes a YAML definition.
func LoadDefinition(r io.Reader) (*Definition, error) {
	var d Definition
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode state definition: %w", err)
	}
	return &d, nil
}

// Registry maps the names used in a Definition to code.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]Condition
	behaviors  map[string]func(c loop.Clock)
	hooks      map[string]func()
}

func NewRegistry() *Registry {
	return &Registry{
		conditions: make(map[string]Condition),
		behaviors:  make(map[string]func(c loop.Clock)),
		hooks:      make(map[string]func()),
	}
}

func (r *Registry) RegisterCondition(name string, cond Condition) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = cond
	return r
}

func (r *Registry) RegisterBehavior(name string, fn func(c loop.Clock)) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.behaviors[name] = fn
	return r
}

func (r *Registry) RegisterHook(name string, fn func()) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = fn
	return r
}

// Graph is a built Definition.
type Graph struct {
	States  map[string]*BasicState
	Initial *BasicState
}

// Machine returns a new Machine already in the initial state.
func (g *Graph) Machine(opts ...MachineOption) *Machine {
	m := NewMachine(opts...)
	m.SetState(g.Initial)
	return m
}

// Build resolves every name against reg. All resolution errors are reported
// together. A nil reg resolves no names.
func (d *Definition) Build(reg *Registry) (*Graph, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if d.Initial == "" {
		return nil, ErrNoInitialState
	}
	if _, ok := d.States[d.Initial]; !ok {
		return nil, fmt.Errorf("initial %q: %w", d.Initial, ErrUnknownState)
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	// deterministic construction order keeps error output stable
	names := make([]string, 0, len(d.States))
	for name := range d.States {
		names = append(names, name)
	}
	slices.Sort(names)

	g := &Graph{States: make(map[string]*BasicState, len(names))}
	var errs []error
	for _, name := range names {
		sd := d.States[name]
		var opts []StateOption
		if sd.Enter != "" {
			if fn, ok := reg.hooks[sd.Enter]; ok {
				opts = append(opts, OnEnter(fn))
			} else {
				errs = append(errs, fmt.Errorf("state %q enter %q: %w", name, sd.Enter, ErrUnknownHook))
			}
		}
		if sd.Exit != "" {
			if fn, ok := reg.hooks[sd.Exit]; ok {
				opts = append(opts, OnExit(fn))
			} else {
				errs = append(errs, fmt.Errorf("state %q exit %q: %w", name, sd.Exit, ErrUnknownHook))
			}
		}
		if sd.Behavior != "" {
			if fn, ok := reg.behaviors[sd.Behavior]; ok {
				opts = append(opts, OnExecute(fn))
			} else {
				errs = append(errs, fmt.Errorf("state %q behavior %q: %w", name, sd.Behavior, ErrUnknownBehavior))
			}
		}
		g.States[name] = NewState(name, opts...)
	}

	for _, name := range names {
		for i, td := range d.States[name].Transitions {
			next, ok := g.States[td.To]
			if !ok {
				errs = append(errs, fmt.Errorf("state %q transition %d to %q: %w", name, i, td.To, ErrUnknownState))
				continue
			}
			cond, ok := reg.conditions[td.When]
			if !ok {
				errs = append(errs, fmt.Errorf("state %q transition %d when %q: %w", name, i, td.When, ErrUnknownCondition))
				continue
			}
			g.States[name].When(td.Priority, next, cond)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	g.Initial = g.States[d.Initial]
	return g, nil
}
