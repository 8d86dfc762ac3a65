package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnsureLoaded_SingleFlight(t *testing.T) {
	b := &fakeBackend{delay: 50 * time.Millisecond, model: &fakeModel{}}
	e := newTestEngine(b, 1, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.EnsureLoaded(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil { t.Fatalf("ensure: %v", err) }
	}
	if got := b.loads.Load(); got != 1 {
		t.Fatalf("expected exactly one load, got %d", got)
	}
	if !e.Loaded() { t.Fatalf("expected loaded") }
}

func TestEnsureLoaded_FailureThenRetry(t *testing.T) {
	pub := NewMemoryPublisher()
	b := &fakeBackend{failFirst: 1, model: &fakeModel{}}
	e := newTestEngine(b, 1, pub)
	err := e.EnsureLoaded(context.Background())
	if !IsLoadError(err) { t.Fatalf("expected LoadError, got %v", err) }
	if e.Loaded() { t.Fatalf("failed load must leave engine unloaded") }
	if e.LastLoadError() == "" { t.Fatalf("expected last load error recorded") }

	if err := e.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !e.Loaded() || e.LoadAttempts() != 2 || e.LastLoadError() != "" {
		t.Fatalf("unexpected state loaded=%v attempts=%d last=%q", e.Loaded(), e.LoadAttempts(), e.LastLoadError())
	}
	if pub.Count(EventLoadFailed) != 1 || pub.Count(EventLoadReady) != 1 || pub.Count(EventLoadStart) != 2 {
		t.Fatalf("unexpected events: %+v", pub.Events())
	}
}

func TestEnsureLoaded_FastPathNoReload(t *testing.T) {
	b := &fakeBackend{model: &fakeModel{}}
	e := newTestEngine(b, 1, nil)
	for i := 0; i < 3; i++ {
		if err := e.EnsureLoaded(context.Background()); err != nil { t.Fatalf("ensure: %v", err) }
	}
	if b.loads.Load() != 1 { t.Fatalf("expected one load, got %d", b.loads.Load()) }
}

func TestEnsureLoaded_WaiterHonorsContext(t *testing.T) {
	b := &fakeBackend{delay: 300 * time.Millisecond, model: &fakeModel{}}
	e := newTestEngine(b, 1, nil)
	go func() { _ = e.EnsureLoaded(context.Background()) }()
	// give the first caller time to take the gate
	time.Sleep(30 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.EnsureLoaded(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEnsureLoaded_NoBackend(t *testing.T) {
	e := newTestEngine(nil, 1, nil)
	if err := e.EnsureLoaded(context.Background()); !IsLoadError(err) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}
