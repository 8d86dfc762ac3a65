package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// fakeBackend counts loads and can fail a configured number of times.
type fakeBackend struct {
	loads     atomic.Int32
	failFirst int32
	delay     time.Duration
	model     *fakeModel
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Load(ctx context.Context) (Model, error) {
	n := b.loads.Add(1)
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= b.failFirst {
		return nil, errors.New("weights missing")
	}
	return b.model, nil
}

// fakeModel emits the configured chunks, or blocks until release is closed.
type fakeModel struct {
	chunks  [][]float32
	err     error
	panicV  any
	block   chan struct{}
	mu      sync.Mutex
	running int
	peak    int
}

func (m *fakeModel) SampleRate() int { return 24000 }
func (m *fakeModel) Close() error    { return nil }

func (m *fakeModel) Generate(ctx context.Context, r Request, onChunk func([]float32) error) error {
	m.mu.Lock()
	m.running++
	if m.running > m.peak {
		m.peak = m.running
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()
	if m.panicV != nil {
		panic(m.panicV)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	for _, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *fakeModel) peakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func newTestEngine(b Backend, workers int, pub EventPublisher) *Engine {
	return New(Config{Backend: b, Workers: workers, Logger: zerolog.Nop(), Publisher: pub})
}
