// Package store wraps the shared Redis counter store used for rate-limit
// windows and queue-depth accounting. Callers treat it as best effort: a
// nil *Store or an unreachable server must degrade, never fail requests.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned (wrapped) when the store cannot be reached.
var ErrUnavailable = errors.New("counter store unavailable")

const defaultTimeout = time.Second

// Store is a Redis connection with reachability tracking.
type Store struct {
	client    *redis.Client
	timeout   time.Duration
	log       zerolog.Logger
	reachable atomic.Bool
}

// Options configures Open and Connect.
type Options struct {
	URL     string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Open parses the URL and creates the client without contacting the
// server. Only an invalid URL returns an error.
func Open(opts Options) (*Store, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ro.DialTimeout = timeout
	ro.ReadTimeout = timeout
	ro.WriteTimeout = timeout
	return New(redis.NewClient(ro), timeout, opts.Logger), nil
}

// Connect opens the store and pings it once. A failed ping still returns a
// usable Store together with an error wrapping ErrUnavailable: the client
// reconnects on its own and callers fail open until it does. Only an
// invalid URL returns a nil Store.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	s, err := Open(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, timeout time.Duration, log zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Store{client: client, timeout: timeout, log: log}
	s.reachable.Store(true)
	return s
}

// Client exposes the underlying client. It is nil for a nil Store.
func (s *Store) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Timeout is the per-operation deadline applied by WithTimeout.
func (s *Store) Timeout() time.Duration {
	if s == nil {
		return defaultTimeout
	}
	return s.timeout
}

// WithTimeout derives a context bounded by the store timeout.
func (s *Store) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Timeout())
}

// Ping probes the server with the store timeout and records the outcome.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return ErrUnavailable
	}
	cctx, cancel := s.WithTimeout(ctx)
	defer cancel()
	err := s.client.Ping(cctx).Err()
	s.Observe(err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Observe records the result of a store operation. Transitions between
// reachable and unreachable are logged once.
func (s *Store) Observe(err error) {
	if s == nil {
		return
	}
	if err == nil || errors.Is(err, redis.Nil) {
		if !s.reachable.Swap(true) {
			s.log.Info().Msg("counter store reachable again")
		}
		return
	}
	if s.reachable.Swap(false) {
		s.log.Warn().Err(err).Msg("counter store unreachable, admission control failing open")
	}
}

// Reachable reports the last observed reachability.
func (s *Store) Reachable() bool {
	if s == nil {
		return false
	}
	return s.reachable.Load()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
