package loop

import (
	"context"

	"github.com/zeusync/tickloop/internal/core/observability/log"
)

// Run drives the loop on the calling goroutine until it is terminated or ctx
// is cancelled. Both end the loop for good; Run then returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		if l.Terminated() {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}
	defer close(l.done)
	if l.Terminated() {
		return ErrTerminated
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(l.ctx, stop)
	defer unregister()

	l.logger.Info("loop started", log.Int("update_rate", l.UpdateRate()), log.Float64("time_scale", l.TimeScale()))
	l.publish(EventStarted, l.UpdateRate())

	for l.RunOneIteration(runCtx) == nil {
	}
	return nil
}

// Start runs the loop on a new goroutine. Errors from Run (a second Start, or
// a start after termination) are logged.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil {
			l.logger.Warn("loop did not start", log.Error(err))
		}
	}()
}

// Done is closed when the first Run call returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close terminates the loop and waits for a running driver to exit. Called
// by a recipient on the loop goroutine it only requests termination: the
// driver exits once the current iteration returns, and Done reports when.
func (l *Loop) Close() error {
	l.Terminate()
	if l.running.Load() && !l.notifying.Load() {
		<-l.done
	}
	return nil
}
