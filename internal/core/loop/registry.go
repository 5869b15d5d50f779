package loop

import (
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/tickloop/internal/core/observability/log"
)

// Registry is the insertion-ordered set of Updatables notified every tick.
// Attach and Detach may be called from any goroutine, including from inside
// an Update call of the dispatch in progress.
type Registry struct {
	mu      sync.RWMutex
	members []Updatable
	index   map[Updatable]struct{}

	logger  log.Log
	onFault func(Fault)
}

func NewRegistry(logger log.Log) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		index:  make(map[Updatable]struct{}),
		logger: logger,
	}
}

// Attach adds u unless it is already attached. Nil and non-comparable values
// are ignored.
func (r *Registry) Attach(u Updatable) {
	if !registrable(u) {
		r.logger.Debug("ignoring unregistrable updatable", log.String("type", fmt.Sprintf("%T", u)))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[u]; ok {
		r.logger.Debug("updatable already attached", log.String("type", fmt.Sprintf("%T", u)))
		return
	}
	r.index[u] = struct{}{}
	r.members = append(r.members, u)
}

// Detach removes u if present.
func (r *Registry) Detach(u Updatable) {
	if !registrable(u) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[u]; !ok {
		return
	}
	delete(r.index, u)
	for i, m := range r.members {
		if m == u {
			r.members = slices.Delete(r.members, i, i+1)
			break
		}
	}
}

// Contains reports whether u is currently attached.
func (r *Registry) Contains(u Updatable) bool {
	if !registrable(u) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[u]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot returns a copy of the attached set in attach order.
func (r *Registry) Snapshot() []Updatable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Updatable, len(r.members))
	copy(out, r.members)
	return out
}

// Dispatch notifies every Updatable attached at the moment Dispatch starts.
// A panicking Updatable is logged and skipped; the rest still run.
func (r *Registry) Dispatch(c Clock) {
	for _, u := range r.Snapshot() {
		r.update(u, c)
	}
}

func (r *Registry) update(u Updatable, c Clock) {
	defer func() {
		if rec := recover(); rec != nil {
			f := Fault{
				Kind:      FaultUpdatable,
				Tick:      c.Ticks(),
				Recipient: fmt.Sprintf("%T", u),
				Value:     rec,
			}
			r.logger.Error("updatable panicked",
				log.String("recipient", f.Recipient),
				log.Int64("tick", f.Tick),
				log.Any("panic", rec),
			)
			if r.onFault != nil {
				r.onFault(f)
			}
		}
	}()
	u.Update(c)
}
