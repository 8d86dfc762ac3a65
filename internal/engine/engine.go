package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Config configures an Engine.
type Config struct {
	Backend Backend
	// Workers bounds concurrent inference jobs. Defaults to 1.
	Workers   int
	Logger    zerolog.Logger
	Publisher EventPublisher
}

// Engine wraps a lazily loaded Model. Safe for concurrent use.
type Engine struct {
	backend   Backend
	log       zerolog.Logger
	publisher EventPublisher

	// loadGate serializes loads; a buffered channel so waiters honor ctx.
	loadGate chan struct{}
	loaded   atomic.Bool
	// model is written once under loadGate before loaded is set.
	model Model

	loadAttempts atomic.Int64
	lastLoadErr  atomic.Pointer[string]

	workers   *semaphore.Weighted
	nWorkers  int
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// New constructs an unloaded Engine.
func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Engine{
		backend:   cfg.Backend,
		log:       cfg.Logger,
		publisher: pub,
		loadGate:  make(chan struct{}, 1),
		workers:   semaphore.NewWeighted(int64(workers)),
		nWorkers:  workers,
	}
}

// Loaded reports whether the model has been constructed. Once true it stays
// true for the life of the engine.
func (e *Engine) Loaded() bool { return e.loaded.Load() }

// Workers returns the worker pool size.
func (e *Engine) Workers() int { return e.nWorkers }

// BackendName returns the configured backend's name.
func (e *Engine) BackendName() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// LoadAttempts returns how many times the backend's Load was invoked.
func (e *Engine) LoadAttempts() int64 { return e.loadAttempts.Load() }

// LastLoadError returns the message of the most recent failed load, or "".
func (e *Engine) LastLoadError() string {
	if p := e.lastLoadErr.Load(); p != nil {
		return *p
	}
	return ""
}

// Close waits for in-flight jobs (bounded by ctx) and closes the model.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var err error
	e.closeOnce.Do(func() {
		if e.loaded.Load() && e.model != nil {
			err = e.model.Close()
		}
	})
	if err != nil {
		return errors.Join(errors.New("close model"), err)
	}
	return nil
}
