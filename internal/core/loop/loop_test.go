package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tickloop/internal/core/events/bus"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Name: "x", UpdateRate: 0, TimeScale: 1})
	assert.ErrorIs(t, err, ErrInvalidUpdateRate)

	_, err = New(Config{UpdateRate: 30, TimeScale: -1})
	assert.ErrorIs(t, err, ErrMissingName)
	assert.ErrorIs(t, err, ErrInvalidTimeScale)

	l, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 60, l.UpdateRate())
	assert.Equal(t, 1.0, l.TimeScale())
	assert.Equal(t, int64(0), l.Ticks())
	assert.Equal(t, StateRunning, l.State())
	assert.NotEmpty(t, l.ID())
}

func TestIterationAdvancesTicksAndPaces(t *testing.T) {
	l, wall := newTestLoop(t, 20)
	u := &recorder{}
	l.Attach(u)

	iterate(t, l, 3)

	assert.Equal(t, int64(3), l.Ticks())
	assert.Equal(t, []int64{1, 2, 3}, u.seen())
	slept, n := wall.Slept()
	assert.Equal(t, 150*time.Millisecond, slept)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(50), l.DeltaTime())
	assert.Equal(t, int64(150), l.Since(0))
	assert.Equal(t, int64(50), l.Since(2))
}

func TestProcessingTimeIsSubtractedFromSleep(t *testing.T) {
	l, wall := newTestLoop(t, 20)
	l.Attach(&recorder{onUpdate: func(Clock) { wall.Advance(20 * time.Millisecond) }})

	iterate(t, l, 1)
	slept, _ := wall.Slept()
	assert.Equal(t, 30*time.Millisecond, slept)
	assert.Equal(t, int64(50), l.DeltaTime())
}

func TestOverrunningIterationDoesNotSleep(t *testing.T) {
	l, wall := newTestLoop(t, 20)
	l.Attach(&recorder{onUpdate: func(Clock) { wall.Advance(80 * time.Millisecond) }})

	iterate(t, l, 1)
	slept, n := wall.Slept()
	assert.Equal(t, time.Duration(0), slept)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(80), l.DeltaTime())
}

func TestTimeScaleChangesPace(t *testing.T) {
	l, wall := newTestLoop(t, 20)
	require.NoError(t, l.SetTimeScale(2))

	iterate(t, l, 4)
	slept, _ := wall.Slept()
	assert.Equal(t, 100*time.Millisecond, slept)
	assert.Equal(t, int64(4), l.Ticks())
	assert.Equal(t, int64(200), l.Since(0), "elapsed time is tick based, not scaled")

	require.NoError(t, l.SetTimeScale(0.5))
	iterate(t, l, 1)
	slept, _ = wall.Slept()
	assert.Equal(t, 200*time.Millisecond, slept)
}

func TestSetTimeScaleRejectsInvalidValues(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	assert.ErrorIs(t, l.SetTimeScale(-0.1), ErrInvalidTimeScale)
	assert.Equal(t, 1.0, l.TimeScale())
}

func TestPauseFreezesTicksButKeepsSampling(t *testing.T) {
	b := bus.New()
	paused := collect(t, b, EventPaused)
	resumed := collect(t, b, EventResumed)
	l, wall := newTestLoop(t, 20, WithEventBus(b))

	u := &recorder{}
	l.Attach(u)
	fired := false
	l.Schedule(0, func(Handle) { fired = true })

	var samples []int
	l.OnRateSampled(func(n int) { samples = append(samples, n) })

	require.NoError(t, l.SetTimeScale(0))
	iterate(t, l, 41)

	assert.Equal(t, int64(0), l.Ticks())
	assert.Empty(t, u.seen())
	assert.False(t, fired)
	assert.Equal(t, []int{0, 0}, samples, "rate sampling follows the wall clock while paused")
	slept, _ := wall.Slept()
	assert.Equal(t, 41*50*time.Millisecond, slept, "paused loop keeps the unscaled cadence")

	require.NoError(t, l.SetTimeScale(1))
	iterate(t, l, 1)
	assert.Equal(t, int64(1), l.Ticks())
	assert.True(t, fired)
	assert.Len(t, paused(), 1)
	assert.Len(t, resumed(), 1)
}

func TestRateSamplesCountProcessedTicks(t *testing.T) {
	b := bus.New()
	events := collect(t, b, EventRateSampled)
	l, _ := newTestLoop(t, 20, WithEventBus(b))
	var samples []int
	l.OnRateSampled(func(n int) { samples = append(samples, n) })

	iterate(t, l, 41)

	// ticks started at 0..950ms, then 1000..1950ms
	assert.Equal(t, []int{20, 20}, samples)
	got := events()
	require.Len(t, got, 2)
	sample := got[1].Data().(RateSample)
	assert.Equal(t, "test", sample.Loop)
	assert.Equal(t, 20, sample.Updates)
	assert.Equal(t, int64(41), sample.Ticks)
	assert.Equal(t, epoch.Add(2*time.Second), sample.At)

	last, ok := l.LastSample()
	require.True(t, ok)
	assert.Equal(t, sample, last)
}

func TestTimedActionScenario(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	var firedAt []int64
	h := l.Schedule(100, func(Handle) { firedAt = append(firedAt, l.Ticks()) })
	assert.NotZero(t, h)

	iterate(t, l, 5)
	assert.Equal(t, []int64{2}, firedAt)
}

func TestRescheduleThroughLoop(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	var firedAt []int64
	h := l.Schedule(100, func(Handle) { firedAt = append(firedAt, l.Ticks()) })
	l.Reschedule(h, 4)

	iterate(t, l, 6)
	assert.Equal(t, []int64{4}, firedAt)

	l.Reschedule(h, 7)
	iterate(t, l, 3)
	assert.Equal(t, []int64{4}, firedAt)

	h2 := l.Schedule(50, func(Handle) { firedAt = append(firedAt, -1) })
	assert.True(t, l.Cancel(h2))
	iterate(t, l, 3)
	assert.Equal(t, []int64{4}, firedAt)
}

func TestIterationOrderDispatchThenDrainThenSample(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	var trace []string

	l.Attach(&recorder{name: "dispatch", trace: &trace})
	l.OnRateSampled(func(int) { trace = append(trace, "sample") })

	// Opening the rate window happens on the first iteration.
	iterate(t, l, 1)
	trace = trace[:0]

	// Iteration 20 closes the window; an action due at that tick fires between.
	l.Schedule(l.TicksToMs(19), func(Handle) { trace = append(trace, "action") })
	iterate(t, l, 18)
	trace = trace[:0]
	iterate(t, l, 1)
	assert.Equal(t, int64(20), l.Ticks())
	assert.Equal(t, []string{"dispatch", "action"}, trace)

	trace = trace[:0]
	l.Schedule(0, func(Handle) { trace = append(trace, "action") })
	iterate(t, l, 1)
	assert.Equal(t, []string{"dispatch", "action", "sample"}, trace)
}

func TestUpdatableSchedulingForCurrentTickFiresAfterDispatch(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	var trace []string
	a := &recorder{name: "a", trace: &trace}
	a.onUpdate = func(c Clock) {
		if c.Ticks() == 1 {
			l.Schedule(0, func(Handle) { trace = append(trace, "follow-up") })
		}
	}
	l.Attach(a)
	l.Attach(&recorder{name: "b", trace: &trace})

	iterate(t, l, 1)
	assert.Equal(t, []string{"a", "b", "follow-up"}, trace)
}

func TestFaultyUpdatableScenario(t *testing.T) {
	b := bus.New()
	faults := collect(t, b, EventRecipientFault)
	l, _ := newTestLoop(t, 20, WithEventBus(b))

	a := &recorder{name: "a", onUpdate: func(c Clock) {
		if c.Ticks() == 2 {
			panic("a failed")
		}
	}}
	bRec := &recorder{name: "b"}
	l.Attach(a)
	l.Attach(bRec)
	l.Schedule(50, func(Handle) { panic("action failed") })

	iterate(t, l, 3)

	assert.Equal(t, []int64{1, 2, 3}, bRec.seen())
	assert.Equal(t, []int64{1, 2, 3}, a.seen())
	got := faults()
	require.Len(t, got, 2)
	assert.Equal(t, FaultTimedAction, got[0].Data().(Fault).Kind)
	assert.Equal(t, FaultUpdatable, got[1].Data().(Fault).Kind)
	assert.Equal(t, int64(2), got[1].Data().(Fault).Tick)
}

func TestTerminateStopsBeforeDispatch(t *testing.T) {
	b := bus.New()
	terminated := collect(t, b, EventTerminated)
	l, _ := newTestLoop(t, 20, WithEventBus(b))
	u := &recorder{}
	u.onUpdate = func(c Clock) {
		if c.Ticks() == 2 {
			l.Terminate()
		}
	}
	l.Attach(u)

	iterate(t, l, 2)
	assert.ErrorIs(t, l.RunOneIteration(context.Background()), ErrTerminated)
	assert.ErrorIs(t, l.RunOneIteration(context.Background()), ErrTerminated)

	assert.Equal(t, []int64{1, 2}, u.seen())
	assert.Equal(t, StateTerminated, l.State())
	l.Terminate()
	assert.Len(t, terminated(), 1)
}

func TestInterruptedSleepTerminates(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.RunOneIteration(ctx), ErrTerminated)
	assert.True(t, l.Terminated())
	assert.Equal(t, int64(1), l.Ticks(), "the interrupted iteration had already dispatched")
}

func TestStatusAndGameTime(t *testing.T) {
	l, _ := newTestLoop(t, 20)
	l.Attach(&recorder{})
	l.Schedule(10_000, func(Handle) {})

	iterate(t, l, 30)
	st := l.Status()
	assert.Equal(t, "test", st.Name)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, int64(30), st.Ticks)
	assert.Equal(t, 1, st.Attached)
	assert.Equal(t, 1, st.PendingActions)
	assert.Equal(t, "00:00:01.500", st.GameTime)
	require.NotNil(t, st.LastSample)
	assert.Equal(t, 20, st.LastSample.Updates)
}

func TestRunWithRealClock(t *testing.T) {
	b := bus.New()
	started := collect(t, b, EventStarted)
	cfg := DefaultConfig()
	cfg.UpdateRate = 200
	l, err := New(cfg, WithEventBus(b))
	require.NoError(t, err)

	var seen atomic.Int64
	l.Attach(UpdateFunc(func(c Clock) { seen.Store(c.Ticks()) }))

	l.Start(context.Background())
	require.Eventually(t, func() bool { return seen.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, l.Run(context.Background()), ErrAlreadyRunning)

	require.NoError(t, l.Close())
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}
	assert.True(t, l.Terminated())
	assert.ErrorIs(t, l.Run(context.Background()), ErrTerminated)
	assert.Len(t, started(), 1)

	frozen := l.Ticks()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, l.Ticks())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateRate = 1 // one-second budget, so the loop is always asleep
	l, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.Ticks() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep was not interrupted")
	}
	assert.True(t, l.Terminated())
}

func TestTerminateInterruptsPacingSleep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateRate = 1
	l, err := New(cfg)
	require.NoError(t, err)

	l.Start(context.Background())
	require.Eventually(t, func() bool { return l.Ticks() == 1 }, time.Second, time.Millisecond)

	begin := time.Now()
	require.NoError(t, l.Close())
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
}

func TestCloseFromRecipientRequestsTermination(t *testing.T) {
	cases := map[string]func(l *Loop, closed chan<- int64){
		"updatable": func(l *Loop, closed chan<- int64) {
			l.Attach(UpdateFunc(func(c Clock) {
				if c.Ticks() == 3 {
					_ = l.Close()
					closed <- c.Ticks()
				}
			}))
		},
		"timed action": func(l *Loop, closed chan<- int64) {
			l.Schedule(l.TicksToMs(3), func(Handle) {
				_ = l.Close()
				closed <- l.Ticks()
			})
		},
		"rate consumer": func(l *Loop, closed chan<- int64) {
			l.OnRateSampled(func(int) {
				_ = l.Close()
				closed <- l.Ticks()
			})
		},
	}

	for name, install := range cases {
		t.Run(name, func(t *testing.T) {
			l, _ := newTestLoop(t, 20)
			closed := make(chan int64, 1)
			install(l, closed)

			errCh := make(chan error, 1)
			go func() { errCh <- l.Run(context.Background()) }()

			var at int64
			select {
			case at = <-closed:
			case <-time.After(2 * time.Second):
				t.Fatal("Close blocked the loop goroutine")
			}
			select {
			case err := <-errCh:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("loop did not exit")
			}

			assert.True(t, l.Terminated())
			assert.Equal(t, at, l.Ticks(), "no tick is dispatched after Close")
			<-l.Done()
		})
	}
}
