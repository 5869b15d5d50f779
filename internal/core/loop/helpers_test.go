package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/tickloop/internal/core/events/bus"
	"github.com/zeusync/tickloop/internal/core/timing"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// recorder is an Updatable remembering every tick it saw.
type recorder struct {
	mu       sync.Mutex
	name     string
	ticks    []int64
	trace    *[]string
	onUpdate func(c Clock)
}

func (r *recorder) Update(c Clock) {
	r.mu.Lock()
	r.ticks = append(r.ticks, c.Ticks())
	if r.trace != nil {
		*r.trace = append(*r.trace, r.name)
	}
	r.mu.Unlock()
	if r.onUpdate != nil {
		r.onUpdate(c)
	}
}

func (r *recorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.ticks))
	copy(out, r.ticks)
	return out
}

// fixedClock is a Clock frozen at a tick, for registry tests.
type fixedClock struct {
	timing.Converter
	tick int64
}

func (c fixedClock) Ticks() int64           { return c.tick }
func (c fixedClock) DeltaTime() int64       { return 0 }
func (c fixedClock) Since(tick int64) int64 { return c.TicksToMs(c.tick - tick) }
func (c fixedClock) UpdateRate() int        { return c.Converter.UpdateRate }
func (c fixedClock) TimeScale() float64     { return 1 }

func newTestLoop(t *testing.T, rate int, opts ...Option) (*Loop, *timing.FakeClock) {
	t.Helper()
	wall := timing.NewFakeClock(epoch)
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.UpdateRate = rate
	l, err := New(cfg, append([]Option{WithWallClock(wall)}, opts...)...)
	require.NoError(t, err)
	return l, wall
}

func iterate(t *testing.T, l *Loop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.RunOneIteration(context.Background()))
	}
}

// collect subscribes to every event of the given type on b.
func collect(t *testing.T, b bus.EventBus, eventType string) func() []bus.Event {
	t.Helper()
	var mu sync.Mutex
	var got []bus.Event
	_, err := b.Subscribe(eventType, func(e bus.Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return func() []bus.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]bus.Event, len(got))
		copy(out, got)
		return out
	}
}
