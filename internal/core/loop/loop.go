package loop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/tickloop/internal/core/events/bus"
	"github.com/zeusync/tickloop/internal/core/observability/log"
	"github.com/zeusync/tickloop/internal/core/timing"
)

var (
	_ Scheduler = (*Loop)(nil)
	_ Clock     = (*Loop)(nil)
)

// State is the run state of a loop.
type State int32

const (
	StateRunning State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Option func(*Loop)

func WithLogger(logger log.Log) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithWallClock replaces the system clock used for pacing and rate sampling.
func WithWallClock(clock timing.WallClock) Option {
	return func(l *Loop) {
		if clock != nil {
			l.wall = clock
		}
	}
}

// WithEventBus publishes lifecycle, rate and fault events to b.
func WithEventBus(b bus.EventBus) Option {
	return func(l *Loop) {
		l.events = b
	}
}

// Loop is a fixed-rate tick scheduler. Each iteration advances logical time
// by one tick (unless paused), notifies the attached Updatables, fires due
// timed actions and feeds the rate tracker, then sleeps the rest of the tick
// budget.
//
// All logical time mutation happens in RunOneIteration, which must only be
// called from one goroutine at a time. Every other method is safe for
// concurrent use.
type Loop struct {
	id     string
	name   string
	conv   timing.Converter
	wall   timing.WallClock
	logger log.Log
	events bus.EventBus

	ticks     atomic.Int64
	timeScale atomic.Uint64 // math.Float64bits
	deltaTime atomic.Int64  // ms
	state     atomic.Int32
	running   atomic.Bool
	notifying atomic.Bool // recipients are running on the loop goroutine

	registry *Registry
	actions  *ActionQueue
	rate     *RateTracker

	lastSample atomic.Pointer[RateSample]

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}

	l := &Loop{
		id:     uuid.NewString(),
		name:   cfg.Name,
		conv:   timing.NewConverter(cfg.UpdateRate),
		wall:   timing.RealClock{},
		logger: log.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(log.String("loop", l.name), log.String("loop_id", l.id))
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.timeScale.Store(math.Float64bits(cfg.TimeScale))

	l.registry = NewRegistry(l.logger)
	l.actions = NewActionQueue(l.conv, l.logger)
	l.rate = NewRateTracker(l.logger)
	l.registry.onFault = l.reportFault
	l.actions.onFault = l.reportFault
	l.rate.onFault = l.reportFault

	return l, nil
}

func (l *Loop) ID() string   { return l.id }
func (l *Loop) Name() string { return l.name }

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Terminated() bool {
	return l.State() == StateTerminated
}

func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

func (l *Loop) DeltaTime() int64 {
	return l.deltaTime.Load()
}

func (l *Loop) Since(tick int64) int64 {
	return l.conv.TicksToMs(l.Ticks() - tick)
}

func (l *Loop) MsToTicks(ms int64) int64 {
	return l.conv.MsToTicks(ms)
}

func (l *Loop) TicksToMs(ticks int64) int64 {
	return l.conv.TicksToMs(ticks)
}

func (l *Loop) UpdateRate() int {
	return l.conv.UpdateRate
}

func (l *Loop) TimeScale() float64 {
	return math.Float64frombits(l.timeScale.Load())
}

// GameTime is the logical time elapsed since the loop was created.
func (l *Loop) GameTime() timing.Span {
	return timing.SpanOf(l.TicksToMs(l.Ticks()))
}

// SetTimeScale changes the pace of logical time. 0 pauses ticks, dispatch and
// timed actions while the loop keeps iterating; 2 runs twice as fast.
func (l *Loop) SetTimeScale(scale float64) error {
	if !validTimeScale(scale) {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeScale, scale)
	}
	prev := math.Float64frombits(l.timeScale.Swap(math.Float64bits(scale)))
	switch {
	case prev > 0 && scale == 0:
		l.logger.Info("loop paused", log.Int64("tick", l.Ticks()))
		l.publish(EventPaused, l.Ticks())
	case prev == 0 && scale > 0:
		l.logger.Info("loop resumed", log.Int64("tick", l.Ticks()), log.Float64("time_scale", scale))
		l.publish(EventResumed, l.Ticks())
	}
	return nil
}

func (l *Loop) Attach(u Updatable) {
	l.registry.Attach(u)
}

func (l *Loop) Detach(u Updatable) {
	l.registry.Detach(u)
}

// Attached reports whether u receives ticks.
func (l *Loop) Attached(u Updatable) bool {
	return l.registry.Contains(u)
}

// Schedule runs fn once the tick count reaches Ticks() + MsToTicks(delayMs).
func (l *Loop) Schedule(delayMs int64, fn Action) Handle {
	return l.actions.Schedule(l.Ticks(), delayMs, fn)
}

func (l *Loop) Reschedule(h Handle, targetTick int64) {
	l.actions.Reschedule(h, targetTick)
}

func (l *Loop) Cancel(h Handle) bool {
	return l.actions.Cancel(h)
}

// OnRateSampled registers fn to receive the number of ticks processed in
// each wall-clock second.
func (l *Loop) OnRateSampled(fn func(updates int)) (cancel func()) {
	return l.rate.OnSample(fn)
}

// LastSample is the most recent rate sample, if any.
func (l *Loop) LastSample() (RateSample, bool) {
	s := l.lastSample.Load()
	if s == nil {
		return RateSample{}, false
	}
	return *s, true
}

// Terminate requests the loop to stop. The running iteration finishes, no
// further ticks are dispatched and the loop cannot be restarted.
func (l *Loop) Terminate() {
	l.terminate("requested")
}

// RunOneIteration performs one loop iteration, pacing sleep included, and
// returns ErrTerminated once the loop has stopped.
func (l *Loop) RunOneIteration(ctx context.Context) error {
	if l.Terminated() {
		return ErrTerminated
	}

	scale := l.TimeScale()
	pace := scale
	if pace <= 0 {
		pace = 1
	}
	tickWait := time.Duration(float64(time.Second) / (float64(l.conv.UpdateRate) * pace))

	start := l.wall.Now()
	l.notifyRecipients(scale, start)

	processing := l.wall.Now().Sub(start)
	if err := l.wall.Sleep(ctx, max(0, tickWait-processing)); err != nil {
		l.terminate("sleep interrupted")
		return ErrTerminated
	}

	l.deltaTime.Store(l.wall.Now().Sub(start).Milliseconds())
	return nil
}

// notifyRecipients runs the tick's dispatch and drain, then rate sampling.
func (l *Loop) notifyRecipients(scale float64, start time.Time) {
	l.notifying.Store(true)
	defer l.notifying.Store(false)

	if scale > 0 {
		tick := l.ticks.Add(1)
		l.registry.Dispatch(l)
		l.actions.Drain(tick)
		l.rate.RecordTick(start)
	}

	now := l.wall.Now()
	if updates, ok := l.rate.Observe(now); ok {
		l.sampled(updates, now)
	}
}

// Status is a point-in-time summary of a loop.
type Status struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	State          string      `json:"state"`
	UpdateRate     int         `json:"update_rate"`
	Ticks          int64       `json:"ticks"`
	TimeScale      float64     `json:"time_scale"`
	DeltaTimeMs    int64       `json:"delta_time_ms"`
	GameTime       string      `json:"game_time"`
	Attached       int         `json:"attached"`
	PendingActions int         `json:"pending_actions"`
	LastSample     *RateSample `json:"last_sample,omitempty"`
}

func (l *Loop) Status() Status {
	return Status{
		ID:             l.id,
		Name:           l.name,
		State:          l.State().String(),
		UpdateRate:     l.UpdateRate(),
		Ticks:          l.Ticks(),
		TimeScale:      l.TimeScale(),
		DeltaTimeMs:    l.DeltaTime(),
		GameTime:       l.GameTime().String(),
		Attached:       l.registry.Len(),
		PendingActions: l.actions.Len(),
		LastSample:     l.lastSample.Load(),
	}
}

func (l *Loop) sampled(updates int, at time.Time) {
	sample := &RateSample{
		Loop:      l.name,
		Updates:   updates,
		Ticks:     l.Ticks(),
		TimeScale: l.TimeScale(),
		At:        at,
	}
	l.lastSample.Store(sample)
	l.publishAt(EventRateSampled, *sample, at)
}

func (l *Loop) terminate(reason string) {
	l.closeOnce.Do(func() {
		l.state.Store(int32(StateTerminated))
		l.cancel()
		l.logger.Info("loop terminated", log.String("reason", reason), log.Int64("tick", l.Ticks()))
		l.publish(EventTerminated, reason)
	})
}

func (l *Loop) reportFault(f Fault) {
	l.publish(EventRecipientFault, f)
}

func (l *Loop) publish(eventType string, data any) {
	l.publishAt(eventType, data, l.wall.Now())
}

func (l *Loop) publishAt(eventType string, data any, at time.Time) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(bus.NewEventAt(eventType, l.name, data, at)); err != nil {
		l.logger.Warn("event handler failed", log.String("event", eventType), log.Error(err))
	}
}
