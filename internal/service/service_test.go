package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kokorod/internal/admission"
	"kokorod/internal/audio"
	"kokorod/internal/catalog"
	"kokorod/internal/engine"
	"kokorod/internal/store"
	"kokorod/pkg/types"
)

type fakeEngine struct {
	calls   atomic.Int32
	loaded  atomic.Bool
	samples []float32
	err     error
	// when set, Synthesize signals started and blocks until ctx is done
	started chan struct{}
}

func (f *fakeEngine) Synthesize(ctx context.Context, req engine.Request) (engine.Result, error) {
	f.calls.Add(1)
	f.loaded.Store(true)
	if f.started != nil {
		f.started <- struct{}{}
		<-ctx.Done()
		return engine.Result{}, ctx.Err()
	}
	if f.err != nil {
		return engine.Result{}, f.err
	}
	return engine.Result{Samples: f.samples, SampleRate: 24000}, nil
}

func (f *fakeEngine) Loaded() bool { return f.loaded.Load() }

type fixture struct {
	svc     *Service
	eng     *fakeEngine
	queue   *admission.QueueMonitor
	limiter *admission.RateLimiter
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, queueMax, rateMax int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	st := store.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 500*time.Millisecond, zerolog.Nop())
	t.Cleanup(func() { _ = st.Close() })
	eng := &fakeEngine{samples: make([]float32, 2400)}
	q := admission.NewQueueMonitor(st, admission.QueueOptions{MaxDepth: queueMax})
	l := admission.NewRateLimiter(st, rateMax, time.Minute)
	svc, err := New(Options{
		Catalog:       catalog.Default(),
		Engine:        eng,
		Encoders:      audio.NewRegistry("", zerolog.Nop()),
		Limiter:       l,
		Queue:         q,
		Store:         st,
		DefaultVoice:  "af_heart",
		MaxTextLength: 50,
		Version:       "1.0.0",
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, eng: eng, queue: q, limiter: l, mr: mr}
}

func speed(v float64) *float64 { return &v }

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t, 10, 60)
	rc := f.svc.NewRequestContext("10.1.1.1:5555")
	sp, err := f.svc.Generate(context.Background(), rc, types.GenerateRequest{Text: "hello", Voice: "af_heart", Speed: speed(1), Format: "wav"})
	require.NoError(t, err)
	assert.NotEmpty(t, sp.Audio)
	assert.Equal(t, "audio/wav", sp.ContentType)
	assert.Equal(t, 100*time.Millisecond, sp.Duration)
	assert.Equal(t, 59, sp.RateLimitRemaining)
	assert.Equal(t, int32(1), f.eng.calls.Load())

	d, err := f.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, d, "queue slot must be released after success")
}

func TestGenerate_DefaultsApplied(t *testing.T) {
	f := newFixture(t, 10, 60)
	sp, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "af_heart", sp.Voice)
	assert.Equal(t, "wav", sp.Format)
}

func TestGenerate_InvalidVoice(t *testing.T) {
	f := newFixture(t, 10, 60)
	_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello", Voice: "does-not-exist"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 400, ve.StatusCode())
	assert.Contains(t, ve.Msg, "does-not-exist")
	assert.Contains(t, ve.Detail, "af_heart")
	assert.Contains(t, ve.Detail, "bm_lewis")
	assert.Zero(t, f.eng.calls.Load())
	// validation failures never touch the limiter
	assert.False(t, f.mr.Exists("ratelimit:10.1.1.1"))
}

func TestGenerate_ValidationCases(t *testing.T) {
	f := newFixture(t, 10, 60)
	cases := map[string]types.GenerateRequest{
		"empty text":      {Text: ""},
		"whitespace text": {Text: "   \n"},
		"too long":        {Text: strings.Repeat("a", 51)},
		"slow":            {Text: "hi", Speed: speed(0.4)},
		"fast":            {Text: "hi", Speed: speed(2.01)},
		"format":          {Text: "hi", Format: "flac"},
		"mp3 no ffmpeg":   {Text: "hi", Format: "mp3"},
	}
	for name, req := range cases {
		_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), req)
		assert.True(t, IsValidationError(err), "%s: expected validation error, got %v", name, err)
	}
	assert.Zero(t, f.eng.calls.Load())

	// multi-byte characters count once
	_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: strings.Repeat("é", 50)})
	assert.NoError(t, err)
}

func TestGenerate_UnsupportedFormatListsSupported(t *testing.T) {
	f := newFixture(t, 10, 60)
	_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hi", Format: "ogg"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "format", ve.Field)
	assert.Contains(t, ve.Detail, "wav")
}

func TestGenerate_QueueFullNeverInvokesEngine(t *testing.T) {
	f := newFixture(t, 2, 60)
	ctx := context.Background()
	r1, err := f.queue.Acquire(ctx)
	require.NoError(t, err)
	r2, err := f.queue.Acquire(ctx)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
	var ce *CapacityExceeded
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 503, ce.StatusCode())
	assert.Zero(t, f.eng.calls.Load())

	r1()
	r2()
	_, err = f.svc.Generate(ctx, f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
	assert.NoError(t, err)
}

func TestGenerate_RateLimit61st(t *testing.T) {
	f := newFixture(t, 100, 60)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := f.svc.Generate(ctx, f.svc.NewRequestContext("10.9.9.9:1000"), types.GenerateRequest{Text: "hello"})
		require.NoError(t, err, "request %d", i+1)
	}
	_, err := f.svc.Generate(ctx, f.svc.NewRequestContext("10.9.9.9:2000"), types.GenerateRequest{Text: "hello"})
	var re *RateLimitExceeded
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 429, re.StatusCode())
	assert.Equal(t, int32(60), f.eng.calls.Load())
}

func TestGenerate_EngineErrorReleasesQueue(t *testing.T) {
	f := newFixture(t, 1, 60)
	f.eng.err = &engine.SynthesisError{Err: errors.New("boom")}
	_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
	assert.True(t, engine.IsSynthesisError(err))
	d, derr := f.queue.Depth(context.Background())
	require.NoError(t, derr)
	assert.Equal(t, 0, d)
}

func TestGenerate_CancelledRequestReleasesQueue(t *testing.T) {
	f := newFixture(t, 1, 60)
	f.eng.started = make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Generate(ctx, f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
		errc <- err
	}()
	select {
	case <-f.eng.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not invoked")
	}

	d, err := f.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d, "slot is held while synthesis runs")
	_, err = f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.2:1"), types.GenerateRequest{Text: "hello"})
	var ce *CapacityExceeded
	require.ErrorAs(t, err, &ce)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("generate did not return after cancel")
	}
	d, err = f.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, d, "cancelled request must release its slot")

	f.eng.started = nil
	_, err = f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.3:1"), types.GenerateRequest{Text: "hello"})
	assert.NoError(t, err)
}

func TestGenerate_ShuttingDown(t *testing.T) {
	f := newFixture(t, 10, 60)
	f.svc.BeginShutdown()
	_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.False(t, f.mr.Exists("ratelimit:10.1.1.1"))
	assert.False(t, f.svc.Ready())
}

func TestGenerate_StoreDownFailsOpen(t *testing.T) {
	f := newFixture(t, 1, 1)
	f.mr.SetError("LOADING store unavailable")
	for i := 0; i < 3; i++ {
		_, err := f.svc.Generate(context.Background(), f.svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
		require.NoError(t, err)
	}
	h := f.svc.Health(context.Background())
	assert.False(t, h.StoreConnected)
	assert.Equal(t, 0, h.QueueSize)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 10, 60)
	h := f.svc.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.ModelLoaded)
	assert.True(t, h.StoreConnected)
	assert.Equal(t, "1.0.0", h.Version)
	assert.Empty(t, h.Detail)

	f.eng.loaded.Store(true)
	release, err := f.queue.Acquire(context.Background())
	require.NoError(t, err)
	defer release()
	h = f.svc.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.QueueSize)
	assert.True(t, f.svc.Ready())
}

func TestGenerate_LogsTextLengthInCharacters(t *testing.T) {
	var buf bytes.Buffer
	svc, err := New(Options{
		Catalog:       catalog.Default(),
		Engine:        &fakeEngine{samples: make([]float32, 240)},
		Encoders:      audio.NewRegistry("", zerolog.Nop()),
		DefaultVoice:  "af_heart",
		MaxTextLength: 50,
		Logger:        zerolog.New(&buf),
	})
	require.NoError(t, err)
	// 50 two-byte characters sit exactly at the limit
	_, err = svc.Generate(context.Background(), svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: strings.Repeat("é", 50)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"text_len":50`)
}

type failingBackend struct{}

func (failingBackend) Name() string { return "http" }
func (failingBackend) Load(ctx context.Context) (engine.Model, error) {
	return nil, errors.New("sidecar unreachable")
}

func TestHealth_ReportsLastLoadFailure(t *testing.T) {
	ctx := context.Background()
	eng := engine.New(engine.Config{Backend: failingBackend{}, Logger: zerolog.Nop()})
	svc, err := New(Options{
		Catalog:       catalog.Default(),
		Engine:        eng,
		Encoders:      audio.NewRegistry("", zerolog.Nop()),
		DefaultVoice:  "af_heart",
		MaxTextLength: 50,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Empty(t, svc.Health(ctx).Detail, "no detail before any load attempt")

	for i := 0; i < 2; i++ {
		_, err = svc.Generate(ctx, svc.NewRequestContext("10.1.1.1:1"), types.GenerateRequest{Text: "hello"})
		assert.True(t, engine.IsLoadError(err))
	}
	h := svc.Health(ctx)
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.ModelLoaded)
	assert.Contains(t, h.Detail, "http backend")
	assert.Contains(t, h.Detail, "2 attempt(s)")
	assert.Contains(t, h.Detail, "sidecar unreachable")
}

func TestVoices(t *testing.T) {
	f := newFixture(t, 10, 60)
	v := f.svc.Voices()
	assert.Len(t, v.Voices, 11)
	assert.Equal(t, "af_heart", v.DefaultVoice)
}

func TestNew_RejectsUnknownDefaultVoice(t *testing.T) {
	_, err := New(Options{Catalog: catalog.Default(), Engine: &fakeEngine{}, Encoders: audio.NewRegistry("", zerolog.Nop()), DefaultVoice: "zz_none"})
	assert.Error(t, err)
}

func TestRequestContext(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := NewRequestContext("192.0.2.1:4000", now)
	b := NewRequestContext("192.0.2.1:4001", now)
	assert.Len(t, a.ID, 12)
	assert.Equal(t, "192.0.2.1", a.ClientKey)
	assert.Equal(t, a.ID, b.ID, "same host and instant give the same id")
	c := NewRequestContext("192.0.2.2:4000", now)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, "unknown", ClientKey(""))
	assert.Equal(t, "2001:db8::1", ClientKey("[2001:db8::1]:80"))
	assert.Equal(t, 2*time.Second, a.Elapsed(now.Add(2*time.Second)))
}
