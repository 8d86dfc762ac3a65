package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"kokorod/internal/admission"
	"kokorod/internal/audio"
	"kokorod/internal/catalog"
	"kokorod/internal/engine"
	"kokorod/pkg/types"
)

// Synthesizer is the engine surface the service depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, req engine.Request) (engine.Result, error)
	Loaded() bool
}

// loadReporter is implemented by engines that record failed model loads.
type loadReporter interface {
	BackendName() string
	LoadAttempts() int64
	LastLoadError() string
}

// Limiter admits or rejects a client attempt.
type Limiter interface {
	Allow(ctx context.Context, clientKey string) (bool, int)
	Max() int
	Window() time.Duration
}

// Queue bounds in-flight work.
type Queue interface {
	Acquire(ctx context.Context) (func(), error)
	Depth(ctx context.Context) (int, error)
	MaxDepth() int
}

// Prober checks counter store reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// Options configures a Service. Limiter, Queue and Store are optional.
type Options struct {
	Catalog       *catalog.Catalog
	Engine        Synthesizer
	Encoders      *audio.Registry
	Limiter       Limiter
	Queue         Queue
	Store         Prober
	DefaultVoice  string
	MaxTextLength int
	Version       string
	// ProbeTimeout bounds the store probe in Health. Defaults to 1s.
	ProbeTimeout time.Duration
	// Accelerator reports hardware acceleration; evaluated once in New.
	Accelerator func() bool
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Service is the request lifecycle manager. Safe for concurrent use.
type Service struct {
	catalog       *catalog.Catalog
	engine        Synthesizer
	encoders      *audio.Registry
	limiter       Limiter
	queue         Queue
	store         Prober
	defaultVoice  string
	maxTextLength int
	version       string
	probeTimeout  time.Duration
	accelerator   bool
	log           zerolog.Logger
	now           func() time.Time

	startedAt    atomic.Int64
	shuttingDown atomic.Bool
}

// New validates opts and constructs a Service.
func New(opts Options) (*Service, error) {
	if opts.Catalog == nil || opts.Catalog.Len() == 0 {
		return nil, errors.New("service: empty voice catalog")
	}
	if opts.Engine == nil {
		return nil, errors.New("service: engine is required")
	}
	if opts.Encoders == nil {
		return nil, errors.New("service: encoders are required")
	}
	if !opts.Catalog.Has(opts.DefaultVoice) {
		return nil, fmt.Errorf("service: default voice %q not in catalog", opts.DefaultVoice)
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 5000
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Service{
		catalog:       opts.Catalog,
		engine:        opts.Engine,
		encoders:      opts.Encoders,
		limiter:       opts.Limiter,
		queue:         opts.Queue,
		store:         opts.Store,
		defaultVoice:  opts.DefaultVoice,
		maxTextLength: opts.MaxTextLength,
		version:       opts.Version,
		probeTimeout:  opts.ProbeTimeout,
		log:           opts.Logger,
		now:           opts.Now,
	}
	if opts.Accelerator != nil {
		s.accelerator = opts.Accelerator()
	}
	s.startedAt.Store(opts.Now().UnixNano())
	return s, nil
}

// MarkStarted records the process start time used for uptime.
func (s *Service) MarkStarted(t time.Time) { s.startedAt.Store(t.UnixNano()) }

// BeginShutdown sets the shutdown flag. New generate requests are rejected
// from then on; requests already admitted run to completion.
func (s *Service) BeginShutdown() { s.shuttingDown.Store(true) }

// ShuttingDown reports whether BeginShutdown was called.
func (s *Service) ShuttingDown() bool { return s.shuttingDown.Load() }

// Ready reports whether the service can take traffic.
func (s *Service) Ready() bool { return s.engine.Loaded() && !s.ShuttingDown() }

// Version of the service.
func (s *Service) Version() string { return s.version }

// NewRequestContext creates correlation data for a request from remoteAddr.
func (s *Service) NewRequestContext(remoteAddr string) RequestContext {
	return NewRequestContext(remoteAddr, s.now())
}

// Speech is a successful generation.
type Speech struct {
	Audio       []byte
	ContentType string
	Format      string
	Voice       string
	// Duration is the playback length; Processing is acceptance to ready.
	Duration   time.Duration
	Processing time.Duration
	// RateLimitRemaining is clamped at zero; -1 when no limiter ran.
	RateLimitRemaining int
}

// Generate runs one request through the lifecycle.
func (s *Service) Generate(ctx context.Context, rc RequestContext, req types.GenerateRequest) (*Speech, error) {
	if s.ShuttingDown() {
		return nil, ErrShuttingDown
	}
	j, err := s.validate(req)
	if err != nil {
		s.log.Debug().Str("request_id", rc.ID).Err(err).Msg("generate: rejected by validation")
		return nil, err
	}

	remaining := -1
	if s.limiter != nil {
		allowed, rem := s.limiter.Allow(ctx, rc.ClientKey)
		if !allowed {
			s.log.Info().Str("request_id", rc.ID).Str("client", rc.ClientKey).Msg("generate: rate limited")
			return nil, &RateLimitExceeded{Limit: s.limiter.Max(), Window: s.limiter.Window().String()}
		}
		remaining = max(rem, 0)
	}

	if s.queue != nil {
		release, err := s.queue.Acquire(ctx)
		if err != nil {
			if errors.Is(err, admission.ErrQueueFull) {
				s.log.Info().Str("request_id", rc.ID).Int("max", s.queue.MaxDepth()).Msg("generate: queue full")
				return nil, &CapacityExceeded{Max: s.queue.MaxDepth()}
			}
			return nil, err
		}
		defer release()
	}

	res, err := s.engine.Synthesize(ctx, engine.Request{Text: j.text, Voice: j.voice, Speed: j.speed})
	if err != nil {
		return nil, err
	}
	b, contentType, err := s.encoders.Encode(ctx, j.format, res.Samples, res.SampleRate)
	if err != nil {
		return nil, &engine.SynthesisError{Err: fmt.Errorf("encode %s: %w", j.format, err)}
	}
	sp := &Speech{
		Audio:              b,
		ContentType:        contentType,
		Format:             j.format,
		Voice:              j.voice,
		Duration:           res.Duration(),
		Processing:         rc.Elapsed(s.now()),
		RateLimitRemaining: remaining,
	}
	s.log.Info().
		Str("request_id", rc.ID).
		Str("voice", j.voice).
		Str("format", j.format).
		Int("text_len", utf8.RuneCountInString(j.text)).
		Int64("duration_ms", sp.Duration.Milliseconds()).
		Int64("processing_ms", sp.Processing.Milliseconds()).
		Msg("generate: speech ready")
	return sp, nil
}

// Voices lists the catalog.
func (s *Service) Voices() types.VoicesResponse {
	return types.VoicesResponse{Voices: s.catalog.List(), DefaultVoice: s.defaultVoice}
}

// Health aggregates engine, store, queue and accelerator signals. A failed
// store probe marks the store unreachable but never fails the check.
func (s *Service) Health(ctx context.Context) types.HealthResponse {
	started := time.Unix(0, s.startedAt.Load())
	h := types.HealthResponse{
		Status:               "degraded",
		Version:              s.version,
		UptimeSeconds:        s.now().Sub(started).Seconds(),
		ModelLoaded:          s.engine.Loaded(),
		AcceleratorAvailable: s.accelerator,
	}
	if h.ModelLoaded {
		h.Status = "healthy"
	} else if lr, ok := s.engine.(loadReporter); ok {
		if msg := lr.LastLoadError(); msg != "" {
			h.Detail = fmt.Sprintf("%s backend: model load failed after %d attempt(s): %s", lr.BackendName(), lr.LoadAttempts(), msg)
		}
	}
	if s.store != nil {
		pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := s.store.Ping(pctx)
		cancel()
		h.StoreConnected = err == nil
	}
	if h.StoreConnected && s.queue != nil {
		qctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		if d, err := s.queue.Depth(qctx); err == nil {
			h.QueueSize = d
		}
		cancel()
	}
	return h
}
