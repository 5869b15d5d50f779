package injector

import (
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/tickloop/internal/app"
	"github.com/zeusync/tickloop/internal/config"
	"github.com/zeusync/tickloop/internal/core/events/bus"
	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/metrics"
	"github.com/zeusync/tickloop/internal/core/observability/log"
	"github.com/zeusync/tickloop/internal/server"
)

// ProviderSet builds an *app.App from a config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideEventBus,
	ProvideLoops,
	ProvideTelemetry,
	ProvideMeters,
	app.New,
)

// ProvideLogger builds the process logger. The cleanup flushes it.
func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	logger := cfg.Log.Logger()
	return logger, func() { _ = logger.Sync() }
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

// ProvideLoops creates one loop per configured entry, in configuration order.
func ProvideLoops(cfg config.Config, logger log.Log, events bus.EventBus) ([]*loop.Loop, error) {
	loops := make([]*loop.Loop, 0, len(cfg.Loops))
	for _, lc := range cfg.Loops {
		l, err := loop.New(lc, loop.WithLogger(logger), loop.WithEventBus(events))
		if err != nil {
			return nil, fmt.Errorf("loop %q: %w", lc.Name, err)
		}
		loops = append(loops, l)
	}
	return loops, nil
}

// ProvideTelemetry returns nil when telemetry is disabled.
func ProvideTelemetry(cfg config.Config, logger log.Log, events bus.EventBus, loops []*loop.Loop) (*server.Server, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil
	}
	return server.NewServer(cfg.Telemetry, logger, events, loops...)
}

// ProvideMeters keeps a minute of rate samples per loop.
func ProvideMeters(loops []*loop.Loop) (app.Meters, func()) {
	meters := make(app.Meters, len(loops))
	for _, l := range loops {
		meters[l.Name()] = metrics.NewUpdatesPerSecond(l, metrics.DefaultHistory)
	}
	return meters, func() {
		for _, m := range meters {
			m.Close()
		}
	}
}
