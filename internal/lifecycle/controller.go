// Package lifecycle orchestrates process startup and graceful shutdown.
//
// Startup: record start time, connect the counter store (non-fatal), preload
// the engine (non-fatal), start serving, then install SIGINT/SIGTERM
// handlers. Shutdown: set the shutdown flag, drain in-flight HTTP requests
// within the configured timeout, then release the engine, the event
// publisher and the store connection.
package lifecycle

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Service is the request-side state the controller drives.
type Service interface {
	MarkStarted(time.Time)
	BeginShutdown()
}

// Engine is preloaded at startup and closed at shutdown.
type Engine interface {
	EnsureLoaded(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is the counter store connection.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
}

// Options configures a Controller. Store and Publisher are optional.
type Options struct {
	Server          *http.Server
	Service         Service
	Engine          Engine
	Store           Store
	Publisher       io.Closer
	ShutdownTimeout time.Duration
	// PreloadTimeout bounds the startup preload; zero means no bound.
	PreloadTimeout time.Duration
	// CancelBase cancels in-flight handler work when draining times out.
	CancelBase context.CancelFunc
	Signals    []os.Signal
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Controller owns the process lifecycle.
type Controller struct {
	opts      Options
	log       zerolog.Logger
	startedAt time.Time

	mu      sync.Mutex
	addr    net.Addr
	serveCh chan error
	running chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New constructs a Controller.
func New(opts Options) *Controller {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{opts: opts, log: opts.Logger, serveCh: make(chan error, 1), running: make(chan struct{})}
}

// StartedAt is the recorded process start time.
func (c *Controller) StartedAt() time.Time { return c.startedAt }

// Addr is the bound listen address once Start returned.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Running is closed once Run is serving with signal handlers installed.
func (c *Controller) Running() <-chan struct{} { return c.running }

// Start runs the startup sequence and begins serving. Store and engine
// failures are logged and tolerated; only a listen failure is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.startedAt = c.opts.Now()
	if c.opts.Service != nil {
		c.opts.Service.MarkStarted(c.startedAt)
	}

	if c.opts.Store != nil {
		if err := c.opts.Store.Ping(ctx); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: counter store unreachable; rate limiting and queue checks fail open")
		} else {
			c.log.Info().Msg("lifecycle: counter store connected")
		}
	} else {
		c.log.Warn().Msg("lifecycle: no counter store configured; rate limiting and queue checks disabled")
	}

	if c.opts.Engine != nil {
		pctx := ctx
		if c.opts.PreloadTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, c.opts.PreloadTimeout)
			defer cancel()
		}
		start := time.Now()
		if err := c.opts.Engine.EnsureLoaded(pctx); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: model preload failed; loading on first request")
		} else {
			c.log.Info().Dur("elapsed", time.Since(start)).Msg("lifecycle: model preloaded")
		}
	}

	if c.opts.Server == nil {
		return errors.New("lifecycle: no http server configured")
	}
	ln, err := net.Listen("tcp", c.opts.Server.Addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.addr = ln.Addr()
	c.mu.Unlock()
	c.log.Info().Str("addr", ln.Addr().String()).Msg("lifecycle: listening")
	go func() {
		if err := c.opts.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.serveCh <- err
		}
	}()
	return nil
}

// Run starts the controller and blocks until a termination signal arrives,
// ctx is canceled or the server fails; it then shuts down.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	sigCtx, stop := signal.NotifyContext(ctx, c.opts.Signals...)
	defer stop()
	close(c.running)

	var serveErr error
	select {
	case <-sigCtx.Done():
		c.log.Info().Msg("lifecycle: shutdown requested")
	case serveErr = <-c.serveCh:
		c.log.Error().Err(serveErr).Msg("lifecycle: server error")
	}
	shutdownErr := c.Shutdown(context.Background())
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// Shutdown stops accepting new work and releases resources. Safe to call
// more than once; later calls return the first result.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown(ctx)
	})
	return c.shutdownErr
}

func (c *Controller) shutdown(ctx context.Context) error {
	if c.opts.Service != nil {
		c.opts.Service.BeginShutdown()
	}
	sctx, cancel := context.WithTimeout(ctx, c.opts.ShutdownTimeout)
	defer cancel()

	var errs []error
	if c.opts.Server != nil {
		if err := c.opts.Server.Shutdown(sctx); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: drain timed out; canceling in-flight requests")
			if c.opts.CancelBase != nil {
				c.opts.CancelBase()
			}
			_ = c.opts.Server.Close()
			errs = append(errs, err)
		}
	}
	if c.opts.Engine != nil {
		// in-flight jobs were canceled or finished above; give workers a moment
		ectx, ecancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.opts.Engine.Close(ectx); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: engine close")
			errs = append(errs, err)
		}
		ecancel()
	}
	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.Close(); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: event publisher close")
			errs = append(errs, err)
		}
	}
	if c.opts.Store != nil {
		if err := c.opts.Store.Close(); err != nil {
			c.log.Warn().Err(err).Msg("lifecycle: store close")
			errs = append(errs, err)
		}
	}
	c.log.Info().Dur("uptime", c.opts.Now().Sub(c.startedAt)).Msg("lifecycle: shutdown complete")
	return errors.Join(errs...)
}
