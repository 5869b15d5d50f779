package loop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tickloop/internal/core/timing"
)

func newQueue() *ActionQueue {
	return NewActionQueue(timing.NewConverter(20), nil)
}

func TestScheduledActionFiresOnceAtTargetTick(t *testing.T) {
	q := newQueue()
	var firedAt []int64
	var current int64
	h := q.Schedule(0, 100, func(Handle) { firedAt = append(firedAt, current) })

	target, ok := q.Target(h)
	require.True(t, ok)
	assert.Equal(t, int64(2), target)

	for current = 1; current <= 5; current++ {
		q.Drain(current)
	}
	assert.Equal(t, []int64{2}, firedAt)
	assert.Equal(t, 0, q.Len())
}

func TestCallbackReceivesItsHandle(t *testing.T) {
	q := newQueue()
	var got Handle
	h := q.Schedule(0, 0, func(self Handle) { got = self })

	assert.Equal(t, 1, q.Drain(0))
	assert.Equal(t, h, got)
}

func TestHandlesAreMonotonicPerQueue(t *testing.T) {
	q1 := newQueue()
	q2 := newQueue()
	noop := func(Handle) {}

	h1 := q1.Schedule(0, 10, noop)
	h2 := q1.Schedule(0, 10, noop)
	q1.Drain(10)
	h3 := q1.Schedule(0, 10, noop)

	assert.Equal(t, Handle(1), h1)
	assert.Equal(t, Handle(2), h2)
	assert.Equal(t, Handle(3), h3, "handles are never reused")
	assert.Equal(t, Handle(1), q2.Schedule(0, 10, noop), "queues do not share a counter")
	assert.Equal(t, Handle(0), q1.Schedule(0, 10, nil))
}

func TestDueActionsFireInTargetThenScheduleOrder(t *testing.T) {
	q := newQueue()
	var order []string
	q.Schedule(0, 150, func(Handle) { order = append(order, "late") })
	q.Schedule(0, 50, func(Handle) { order = append(order, "first") })
	q.Schedule(0, 50, func(Handle) { order = append(order, "second") })

	assert.Equal(t, 3, q.Drain(10))
	assert.Equal(t, []string{"first", "second", "late"}, order)
}

func TestRescheduleMovesFiringTick(t *testing.T) {
	q := newQueue()
	var firedAt []int64
	var current int64
	h := q.Schedule(0, 100, func(Handle) { firedAt = append(firedAt, current) })

	q.Reschedule(h, 4)
	for current = 1; current <= 6; current++ {
		q.Drain(current)
	}
	assert.Equal(t, []int64{4}, firedAt)

	q.Reschedule(h, 1)
	q.Drain(10)
	assert.Equal(t, []int64{4}, firedAt, "rescheduling a fired handle is a no-op")
	_, ok := q.Target(h)
	assert.False(t, ok)
}

func TestRescheduleEarlierFiresSooner(t *testing.T) {
	q := newQueue()
	fired := false
	h := q.Schedule(0, 60_000, func(Handle) { fired = true })

	q.Drain(1)
	assert.False(t, fired)
	q.Reschedule(h, 1)
	q.Drain(1)
	assert.True(t, fired)
}

func TestCancel(t *testing.T) {
	q := newQueue()
	fired := false
	h := q.Schedule(0, 50, func(Handle) { fired = true })

	assert.True(t, q.Cancel(h))
	assert.False(t, q.Cancel(h))
	q.Drain(100)
	assert.False(t, fired)
}

func TestRescheduleToNeverParksAction(t *testing.T) {
	q := newQueue()
	fired := false
	h := q.Schedule(0, 50, func(Handle) { fired = true })

	q.Reschedule(h, Never)
	q.Drain(1 << 40)
	assert.False(t, fired)
	assert.Equal(t, 1, q.Len())
}

func TestActionsScheduledDuringDrainWaitForNextDrain(t *testing.T) {
	q := newQueue()
	var fired []string
	q.Schedule(0, 0, func(Handle) {
		fired = append(fired, "outer")
		q.Schedule(0, 0, func(Handle) { fired = append(fired, "inner") })
	})

	assert.Equal(t, 1, q.Drain(5))
	assert.Equal(t, []string{"outer"}, fired)
	assert.Equal(t, 1, q.Drain(5))
	assert.Equal(t, []string{"outer", "inner"}, fired)
}

func TestSelfReschedulingCallbackDoesNotLivelock(t *testing.T) {
	q := newQueue()
	count := 0
	var again Action
	again = func(Handle) {
		count++
		q.Schedule(0, 0, again)
	}
	q.Schedule(0, 0, again)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, q.Drain(1))
	}
	assert.Equal(t, 3, count)
}

func TestCallbackCancellingSiblingInSameDrain(t *testing.T) {
	q := newQueue()
	var sibling Handle
	fired := false
	q.Schedule(0, 0, func(Handle) { q.Cancel(sibling) })
	sibling = q.Schedule(0, 0, func(Handle) { fired = true })

	assert.Equal(t, 1, q.Drain(1))
	assert.False(t, fired)
}

func TestCallbackPostponingSiblingInSameDrain(t *testing.T) {
	q := newQueue()
	var sibling Handle
	var firedAt []int64
	var current int64 = 1
	q.Schedule(0, 0, func(Handle) { q.Reschedule(sibling, 3) })
	sibling = q.Schedule(0, 0, func(Handle) { firedAt = append(firedAt, current) })

	for ; current <= 4; current++ {
		q.Drain(current)
	}
	assert.Equal(t, []int64{3}, firedAt)
}

func TestPanickingActionIsConsumed(t *testing.T) {
	q := newQueue()
	var faults []Fault
	q.onFault = func(f Fault) { faults = append(faults, f) }
	after := false
	bad := q.Schedule(0, 0, func(Handle) { panic("broken") })
	q.Schedule(0, 0, func(Handle) { after = true })

	assert.NotPanics(t, func() { q.Drain(1) })
	assert.True(t, after)
	assert.Equal(t, 0, q.Len())
	require.Len(t, faults, 1)
	assert.Equal(t, FaultTimedAction, faults[0].Kind)
	assert.Equal(t, bad, faults[0].Handle)

	q.Drain(2)
	assert.Len(t, faults, 1, "a panicking action is not retried")
}

func TestConcurrentScheduleFiresEveryHandleOnce(t *testing.T) {
	q := newQueue()
	const workers, perWorker = 8, 250

	var mu sync.Mutex
	fired := make(map[Handle]int)
	record := func(h Handle) {
		mu.Lock()
		fired[h]++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				q.Schedule(0, int64(i%5)*50, record)
			}
		}()
	}

	var tick int64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		tick++
		q.Drain(tick)
	}
	q.Drain(tick + 10)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, fired, workers*perWorker)
	for h, n := range fired {
		require.Equalf(t, 1, n, "handle %d fired %d times", h, n)
	}
}
