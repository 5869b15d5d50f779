package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/tickloop/internal/core/observability/log"
)

// SampleWindow is the wall-clock length of one rate sample.
const SampleWindow = time.Second

type rateConsumer struct {
	fn func(updates int)
}

// RateTracker counts processed ticks per wall-clock second and reports each
// window's count to its consumers. A tick belongs to the window its
// iteration started in.
type RateTracker struct {
	last atomic.Int64

	mu          sync.Mutex
	consumers   []*rateConsumer
	windowStart time.Time
	count       int
	carry       int // ticks started at or after the open window's end

	logger  log.Log
	onFault func(Fault)
}

func NewRateTracker(logger log.Log) *RateTracker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &RateTracker{logger: logger}
}

// RecordTick counts one logical tick whose iteration started at. The first
// tick or observation opens the window.
func (r *RateTracker) RecordTick(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windowStart.IsZero() {
		r.windowStart = at
	}
	if at.Sub(r.windowStart) >= SampleWindow {
		r.carry++
		return
	}
	r.count++
}

// Pending is the count accumulated in the current window.
func (r *RateTracker) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Last is the count of the most recently completed window.
func (r *RateTracker) Last() int {
	return int(r.last.Load())
}

// OnSample registers fn for every future window. The returned cancel
// function unregisters it.
func (r *RateTracker) OnSample(fn func(updates int)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c := &rateConsumer{fn: fn}
	r.mu.Lock()
	r.consumers = append(r.consumers, c)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			next := make([]*rateConsumer, 0, len(r.consumers))
			for _, cur := range r.consumers {
				if cur != c {
					next = append(next, cur)
				}
			}
			r.consumers = next
		})
	}
}

// Observe closes the current window once SampleWindow has elapsed since it
// opened, notifies every consumer with its count and starts a new window at
// now. Ticks recorded past the window's end move to the new window. When no
// tick has opened the window yet the call only opens it. It reports whether a
// sample was emitted and its count.
func (r *RateTracker) Observe(now time.Time) (int, bool) {
	r.mu.Lock()
	if r.windowStart.IsZero() {
		r.windowStart = now
		r.mu.Unlock()
		return 0, false
	}
	if now.Sub(r.windowStart) < SampleWindow {
		r.mu.Unlock()
		return 0, false
	}
	updates := r.count
	r.count, r.carry = r.carry, 0
	r.windowStart = now
	consumers := r.consumers
	r.mu.Unlock()

	r.last.Store(int64(updates))
	for _, c := range consumers {
		r.notify(c, updates)
	}
	return updates, true
}

func (r *RateTracker) notify(c *rateConsumer, updates int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("rate consumer panicked", log.Int("updates", updates), log.Any("panic", rec))
			if r.onFault != nil {
				r.onFault(Fault{Kind: FaultRateSample, Value: rec})
			}
		}
	}()
	c.fn(updates)
}
