package engine

import (
	"context"
	"errors"
	"time"
)

var errNoBackend = errors.New("no backend configured")

// EnsureLoaded constructs the model exactly once. Concurrent callers wait for
// the in-progress load; a failed load leaves the engine unloaded so a later
// call retries. The fast path takes no locks.
func (e *Engine) EnsureLoaded(ctx context.Context) error {
	if e.loaded.Load() {
		return nil
	}
	select {
	case e.loadGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.loadGate }()

	// Re-check: another caller may have finished loading while we waited.
	if e.loaded.Load() {
		return nil
	}
	if e.backend == nil {
		return &LoadError{Err: errNoBackend}
	}

	start := time.Now()
	e.loadAttempts.Add(1)
	e.log.Info().Str("event", EventLoadStart).Str("backend", e.backend.Name()).Msg("engine: loading model")
	e.publisher.Publish(Event{Name: EventLoadStart, Time: start, Fields: map[string]any{"backend": e.backend.Name()}})

	m, err := e.backend.Load(ctx)
	if err == nil && m == nil {
		err = errors.New("backend returned no model")
	}
	if err != nil {
		msg := err.Error()
		e.lastLoadErr.Store(&msg)
		loadsTotal.WithLabelValues("error").Inc()
		e.log.Error().Err(err).Str("event", EventLoadFailed).Dur("elapsed", time.Since(start)).Msg("engine: model load failed")
		e.publisher.Publish(Event{Name: EventLoadFailed, Time: time.Now(), Fields: map[string]any{"error": msg}})
		return &LoadError{Err: err}
	}

	e.model = m
	e.loaded.Store(true)
	e.lastLoadErr.Store(nil)
	loadsTotal.WithLabelValues("ok").Inc()
	loadedGauge.Set(1)
	e.log.Info().Str("event", EventLoadReady).Dur("elapsed", time.Since(start)).Int("sample_rate", m.SampleRate()).Msg("engine: model loaded")
	e.publisher.Publish(Event{Name: EventLoadReady, Time: time.Now(), Fields: map[string]any{"elapsed_ms": time.Since(start).Milliseconds()}})
	return nil
}
