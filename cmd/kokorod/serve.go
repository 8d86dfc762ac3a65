package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kokorod/internal/admission"
	"kokorod/internal/audio"
	"kokorod/internal/common/fsutil"
	"kokorod/internal/config"
	"kokorod/internal/engine"
	"kokorod/internal/httpapi"
	"kokorod/internal/lifecycle"
	"kokorod/internal/service"
	"kokorod/internal/store"
)

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctrl, err := buildServer(cfg, log)
	if err != nil {
		return err
	}
	return ctrl.Run(cmd.Context())
}

// buildServer wires every component from cfg. Nothing touches the network
// here; the controller connects and preloads when started.
func buildServer(cfg config.Config, log zerolog.Logger) (*lifecycle.Controller, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		URL:     cfg.RedisURL,
		Timeout: time.Duration(cfg.StoreTimeoutMS) * time.Millisecond,
		Logger:  log.With().Str("component", "store").Logger(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("counter store disabled")
	}

	var publisher engine.EventPublisher
	var natsPub *engine.NATSPublisher
	if cfg.EventsNATSURL != "" {
		natsPub, err = engine.NewNATSPublisher(cfg.EventsNATSURL, cfg.EventsSubject, log.With().Str("component", "events").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("event publishing disabled")
		} else {
			publisher = natsPub
		}
	}

	eng := engine.New(engine.Config{
		Backend:   newBackend(cfg, log),
		Workers:   cfg.InferenceWorkers,
		Logger:    log.With().Str("component", "engine").Logger(),
		Publisher: publisher,
	})

	svcOpts := service.Options{
		Catalog:       cat,
		Engine:        eng,
		Encoders:      audio.NewRegistry(cfg.FFmpegPath, log.With().Str("component", "audio").Logger()),
		DefaultVoice:  cfg.DefaultVoice,
		MaxTextLength: cfg.MaxTextLength,
		Version:       version,
		Accelerator:   fsutil.AcceleratorAvailable,
		Logger:        log.With().Str("component", "service").Logger(),
	}
	if st != nil {
		svcOpts.Limiter = admission.NewRateLimiter(st, cfg.RateLimitRequests, seconds(cfg.RateLimitWindow))
		svcOpts.Queue = admission.NewQueueMonitor(st, admission.QueueOptions{MaxDepth: cfg.QueueMaxSize})
		svcOpts.Store = st
	}
	svc, err := service.New(svcOpts)
	if err != nil {
		return nil, err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeoutSeconds(int64(cfg.RequestTimeout))
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	if err := httpapi.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctrlOpts := lifecycle.Options{
		Server:          srv,
		Service:         svc,
		Engine:          eng,
		ShutdownTimeout: seconds(cfg.ShutdownTimeout),
		CancelBase:      cancelBase,
		Logger:          log.With().Str("component", "lifecycle").Logger(),
	}
	if st != nil {
		ctrlOpts.Store = st
	}
	if natsPub != nil {
		ctrlOpts.Publisher = natsPub
	}
	log.Info().
		Str("addr", cfg.Addr).
		Str("backend", cfg.Backend).
		Int("voices", cat.Len()).
		Strs("formats", svcOpts.Encoders.Formats()).
		Msg("kokorod configured")
	return lifecycle.New(ctrlOpts), nil
}

func newBackend(cfg config.Config, log zerolog.Logger) engine.Backend {
	if cfg.Backend == "tone" {
		return engine.NewToneBackend(cfg.SampleRate, 0)
	}
	cacheDir := cfg.ModelCacheDir
	if cacheDir != "" {
		// the sidecar shares this volume for downloaded weights
		if p, err := fsutil.EnsureDir(cacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cacheDir).Msg("model cache dir not prepared")
		} else {
			cacheDir = p
		}
	}
	return engine.NewHTTPBackend(engine.HTTPBackendConfig{
		BaseURL:        cfg.BackendURL,
		SampleRate:     cfg.SampleRate,
		ModelCacheDir:  cacheDir,
		UseGPU:         cfg.UseGPU,
		RequestTimeout: seconds(cfg.RequestTimeout),
	})
}
