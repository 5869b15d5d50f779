// Package app runs a set of loops and the optional telemetry server as one
// process.
package app

import (
	"context"
	"errors"

	"github.com/zeusync/tickloop/internal/core/events/bus"
	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/metrics"
	"github.com/zeusync/tickloop/internal/core/observability/log"
	"github.com/zeusync/tickloop/internal/server"
	"github.com/zeusync/tickloop/pkg/concurrent"
)

// Meters maps loop names to their rate history.
type Meters map[string]*metrics.UpdatesPerSecond

type App struct {
	logger    log.Log
	events    bus.EventBus
	loops     []*loop.Loop
	telemetry *server.Server
	meters    Meters
}

// New assembles an App. telemetry may be nil.
func New(logger log.Log, events bus.EventBus, loops []*loop.Loop, telemetry *server.Server, meters Meters) *App {
	if logger == nil {
		logger = log.NewNop()
	}
	return &App{
		logger:    logger.With(log.String("component", "app")),
		events:    events,
		loops:     loops,
		telemetry: telemetry,
		meters:    meters,
	}
}

func (a *App) Events() bus.EventBus { return a.events }

func (a *App) Loops() []*loop.Loop { return a.loops }

// Loop returns the loop named name, or nil.
func (a *App) Loop(name string) *loop.Loop {
	for _, l := range a.loops {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// Meter returns the rate history of the loop named name, or nil.
func (a *App) Meter(name string) *metrics.UpdatesPerSecond {
	return a.meters[name]
}

func (a *App) Telemetry() *server.Server { return a.telemetry }

// Run drives every loop on its own goroutine, plus the telemetry server when
// configured, until ctx is done or a component fails. All loops are
// terminated before Run returns.
func (a *App) Run(ctx context.Context) error {
	tasks := make([]concurrent.Task, 0, len(a.loops)+1)
	for _, l := range a.loops {
		tasks = append(tasks, l.Run)
	}
	if a.telemetry != nil {
		tasks = append(tasks, a.telemetry.Run)
	}

	a.logger.Info("starting", log.Int("loops", len(a.loops)), log.Bool("telemetry", a.telemetry != nil))
	err := concurrent.Run(ctx, tasks...)
	if closeErr := concurrent.Each(a.loops, (*loop.Loop).Close); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		a.logger.Error("stopped with error", log.Error(err))
		return err
	}
	a.logger.Info("stopped")
	return nil
}
