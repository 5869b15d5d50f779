package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/tickloop/internal/core/events/bus"
	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/observability/log"
)

// Config holds telemetry server configuration
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// WriteTimeout bounds every HTTP response and websocket frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown once the run context is done.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// ClientBuffer is the number of samples queued per websocket client
	// before the client is dropped.
	ClientBuffer int `yaml:"client_buffer" json:"client_buffer"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		Enabled:         true,
		ListenAddr:      "127.0.0.1:8080",
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		ClientBuffer:    16,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Enabled && c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write_timeout must not be negative, got %s", c.WriteTimeout))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must not be negative, got %s", c.ShutdownTimeout))
	}
	if c.ClientBuffer < 1 {
		errs = append(errs, fmt.Errorf("client_buffer must be positive, got %d", c.ClientBuffer))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Server exposes loop status and rate samples over HTTP and websocket.
type Server struct {
	config Config
	logger log.Log
	events bus.EventBus

	loops map[string]*loop.Loop
	order []string

	hub     *hub
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	running atomic.Bool
	closed  atomic.Bool
}

// NewServer creates a telemetry server for loops. Rate samples are taken from
// events, which may be nil when only the HTTP endpoints are needed.
func NewServer(config Config, logger log.Log, events bus.EventBus, loops ...*loop.Loop) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		config: config,
		logger: logger.With(log.String("component", "telemetry")),
		events: events,
		loops:  make(map[string]*loop.Loop, len(loops)),
		ready:  make(chan struct{}),
	}
	for _, l := range loops {
		if l == nil {
			continue
		}
		if _, dup := s.loops[l.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLoop, l.Name())
		}
		s.loops[l.Name()] = l
		s.order = append(s.order, l.Name())
	}
	s.hub = newHub(s.logger, config.ClientBuffer, config.WriteTimeout)
	s.handler = s.routes()

	s.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.Int("loops", len(s.order)))

	return s, nil
}

// Handler serves the telemetry endpoints without listening. It is what Run serves.
func (s *Server) Handler() http.Handler { return s.handler }

// Ready is closed once Run is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound listen address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. It returns nil after a graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.closed.Store(true)

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		s.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("listen %s: %w", s.config.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	unsubscribe := s.forwardSamples()
	defer unsubscribe()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	s.logger.Info("Server listening", log.String("addr", ln.Addr().String()))
	close(s.ready)

	select {
	case err := <-serveErr:
		s.hub.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("Server failed", log.Error(err))
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	s.hub.close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Graceful shutdown incomplete", log.Error(err))
		_ = srv.Close()
	}
	<-serveErr

	s.logger.Info("Server stopped")
	return nil
}

// forwardSamples relays rate samples from the event bus to websocket clients.
func (s *Server) forwardSamples() (unsubscribe func()) {
	if s.events == nil {
		return func() {}
	}
	sub, err := s.events.Subscribe(loop.EventRateSampled, func(e bus.Event) error {
		sample, ok := e.Data().(loop.RateSample)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type(), e.Data())
		}
		s.hub.broadcast(sample)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to subscribe to rate samples", log.Error(err))
		return func() {}
	}
	return func() { _ = sub.Cancel() }
}

// loopNamed returns the loop registered under name.
func (s *Server) loopNamed(name string) (*loop.Loop, error) {
	l, ok := s.loops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLoopNotFound, name)
	}
	return l, nil
}
