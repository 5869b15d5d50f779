package loop

import (
	"math"
	"sync"

	"github.com/zeusync/tickloop/internal/core/observability/log"
	"github.com/zeusync/tickloop/internal/core/timing"
	"github.com/zeusync/tickloop/pkg/sequence"
)

// Never is a target tick no loop reaches. Rescheduling to Never parks an action.
const Never int64 = math.MaxInt64

type timedAction struct {
	handle Handle
	target int64
	fn     Action
	item   *sequence.Item[*timedAction]
}

func dueFirst(a, b *timedAction) bool {
	if a.target != b.target {
		return a.target < b.target
	}
	return a.handle < b.handle
}

// ActionQueue holds one-shot callbacks bound to target ticks. Schedule,
// Reschedule and Cancel are safe from any goroutine; Drain is called by the
// loop goroutine only.
type ActionQueue struct {
	mu      sync.Mutex
	conv    timing.Converter
	last    Handle
	pending map[Handle]*timedAction
	queue   *sequence.PriorityQueue[*timedAction]

	logger  log.Log
	onFault func(Fault)
}

func NewActionQueue(conv timing.Converter, logger log.Log) *ActionQueue {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ActionQueue{
		conv:    conv,
		pending: make(map[Handle]*timedAction),
		queue:   sequence.NewPriorityQueue(dueFirst),
		logger:  logger,
	}
}

// Schedule registers fn to fire once the tick count reaches
// currentTick + MsToTicks(delayMs). A nil fn is ignored and yields handle 0.
func (q *ActionQueue) Schedule(currentTick, delayMs int64, fn Action) Handle {
	if fn == nil {
		return 0
	}
	target := currentTick + q.conv.MsToTicks(delayMs)
	if delayMs > 0 && target < currentTick {
		target = Never
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.last++
	a := &timedAction{handle: q.last, target: target, fn: fn}
	a.item = q.queue.Enqueue(a)
	q.pending[a.handle] = a
	return a.handle
}

// Reschedule overwrites the target tick of a pending action. Unknown or
// already fired handles are ignored.
func (q *ActionQueue) Reschedule(h Handle, targetTick int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.pending[h]
	if !ok {
		return
	}
	a.target = targetTick
	q.queue.Fix(a.item)
}

// Cancel drops a pending action. It reports whether the action was pending.
func (q *ActionQueue) Cancel(h Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.pending[h]
	if !ok {
		return false
	}
	delete(q.pending, h)
	q.queue.Remove(a.item)
	return true
}

// Target returns the target tick of a pending action.
func (q *ActionQueue) Target(h Handle) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.pending[h]
	if !ok {
		return 0, false
	}
	return a.target, true
}

func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain fires every action due at currentTick and returns how many fired.
//
// The due set is fixed when Drain starts: actions scheduled by callbacks of
// this drain wait for a later call even if already due. An action cancelled,
// or rescheduled past currentTick, by an earlier callback of the same drain
// does not fire.
func (q *ActionQueue) Drain(currentTick int64) int {
	q.mu.Lock()
	var due []*timedAction
	for {
		next, ok := q.queue.Peek()
		if !ok || next.target > currentTick {
			break
		}
		_, _ = q.queue.Dequeue()
		due = append(due, next)
	}
	q.mu.Unlock()

	fired := 0
	for _, a := range due {
		if !q.claim(a, currentTick) {
			continue
		}
		q.fire(a, currentTick)
		fired++
	}
	return fired
}

// claim removes a from the pending set if it is still due. A pending action
// that was moved into the future is put back on the heap.
func (q *ActionQueue) claim(a *timedAction, currentTick int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.pending[a.handle]; !ok || cur != a {
		return false
	}
	if a.target > currentTick {
		q.queue.Requeue(a.item)
		return false
	}
	delete(q.pending, a.handle)
	return true
}

func (q *ActionQueue) fire(a *timedAction, currentTick int64) {
	defer func() {
		if rec := recover(); rec != nil {
			f := Fault{
				Kind:   FaultTimedAction,
				Tick:   currentTick,
				Handle: a.handle,
				Value:  rec,
			}
			q.logger.Error("timed action panicked",
				log.Uint64("handle", uint64(a.handle)),
				log.Int64("tick", currentTick),
				log.Any("panic", rec),
			)
			if q.onFault != nil {
				q.onFault(f)
			}
		}
	}()
	a.fn(a.handle)
}
