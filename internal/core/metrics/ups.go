// Package metrics keeps rolling statistics over a loop's rate samples.
package metrics

import (
	"slices"
	"sync"
)

// DefaultHistory is the number of samples kept when no capacity is given.
const DefaultHistory = 60

// RateSource is satisfied by *loop.Loop.
type RateSource interface {
	OnRateSampled(fn func(updates int)) (cancel func())
}

// UpdatesPerSecond records the most recent samples of a RateSource.
type UpdatesPerSecond struct {
	mu      sync.RWMutex
	history []int
	next    int
	full    bool
	total   uint64
	cancel  func()
}

// NewUpdatesPerSecond subscribes to src. A capacity below one uses DefaultHistory.
func NewUpdatesPerSecond(src RateSource, capacity int) *UpdatesPerSecond {
	if capacity < 1 {
		capacity = DefaultHistory
	}
	u := &UpdatesPerSecond{history: make([]int, capacity)}
	if src != nil {
		u.cancel = src.OnRateSampled(u.Record)
	}
	return u
}

// Record adds a sample. It is called by the source on every window.
func (u *UpdatesPerSecond) Record(updates int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history[u.next] = updates
	u.next = (u.next + 1) % len(u.history)
	if u.next == 0 {
		u.full = true
	}
	u.total++
}

// Close stops receiving samples. Collected values stay readable.
func (u *UpdatesPerSecond) Close() {
	u.mu.Lock()
	cancel := u.cancel
	u.cancel = nil
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Samples returns the retained history, oldest first.
func (u *UpdatesPerSecond) Samples() []int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.samples()
}

func (u *UpdatesPerSecond) samples() []int {
	if !u.full {
		return slices.Clone(u.history[:u.next])
	}
	return append(slices.Clone(u.history[u.next:]), u.history[:u.next]...)
}

// Count is the number of samples recorded since creation, including those
// no longer retained.
func (u *UpdatesPerSecond) Count() uint64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total
}

func (u *UpdatesPerSecond) Last() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.total == 0 {
		return 0
	}
	i := u.next - 1
	if i < 0 {
		i = len(u.history) - 1
	}
	return u.history[i]
}

// Average over the retained history, 0 without samples.
func (u *UpdatesPerSecond) Average() float64 {
	s := u.Samples()
	if len(s) == 0 {
		return 0
	}
	var sum int
	for _, v := range s {
		sum += v
	}
	return float64(sum) / float64(len(s))
}

func (u *UpdatesPerSecond) Min() int {
	s := u.Samples()
	if len(s) == 0 {
		return 0
	}
	return slices.Min(s)
}

func (u *UpdatesPerSecond) Max() int {
	s := u.Samples()
	if len(s) == 0 {
		return 0
	}
	return slices.Max(s)
}
