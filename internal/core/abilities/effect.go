package abilities

import "github.com/zeusync/tickloop/internal/core/loop"

// Effect is applied by an Execution once Delay milliseconds of logical time
// have passed since the cast tick.
type Effect interface {
	Name() string
	Delay() int64
	Apply(c loop.Clock, e *Execution)
}

type funcEffect struct {
	name  string
	delay int64
	fn    func(c loop.Clock, e *Execution)
}

func (f *funcEffect) Name() string  { return f.name }
func (f *funcEffect) Delay() int64  { return f.delay }
func (f *funcEffect) Apply(c loop.Clock, e *Execution) {
	if f.fn != nil {
		f.fn(c, e)
	}
}

// NewEffect wraps fn as an Effect. Negative delays are treated as zero.
func NewEffect(name string, delayMs int64, fn func(c loop.Clock, e *Execution)) Effect {
	return &funcEffect{name: name, delay: max(delayMs, 0), fn: fn}
}
