package admission

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kokorod/internal/store"
)

// ErrQueueFull is returned by Acquire when the shared depth is at capacity.
var ErrQueueFull = errors.New("queue is full")

const defaultQueueKey = "kokoro:queue:depth"

// acquireScript increments the depth only while it is below the maximum.
// Returns -1 when full. The key TTL is refreshed so a counter orphaned by a
// crashed replica resets after a quiet period.
var acquireScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur >= tonumber(ARGV[1]) then
  return -1
end
local v = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return v
`)

// releaseScript decrements the depth, clamping at zero.
var releaseScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('SET', KEYS[1], 0)
  v = 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return v
`)

// QueueOptions configures a QueueMonitor.
type QueueOptions struct {
	// MaxDepth is the admission limit.
	MaxDepth int
	// TTL bounds how long an idle counter survives; it should exceed the
	// longest request. Defaults to 10 minutes.
	TTL time.Duration
	// Key overrides the counter key.
	Key string
}

// QueueMonitor bounds the total number of in-flight synthesis jobs across
// all replicas sharing the store.
type QueueMonitor struct {
	store *store.Store
	max   int
	ttl   time.Duration
	key   string
}

// NewQueueMonitor returns a monitor over st. st may be nil (no accounting).
func NewQueueMonitor(st *store.Store, opts QueueOptions) *QueueMonitor {
	q := &QueueMonitor{store: st, max: opts.MaxDepth, ttl: opts.TTL, key: opts.Key}
	if q.ttl <= 0 {
		q.ttl = 10 * time.Minute
	}
	if q.key == "" {
		q.key = defaultQueueKey
	}
	return q
}

// MaxDepth is the configured admission limit.
func (q *QueueMonitor) MaxDepth() int { return q.max }

// Depth reads the current shared depth.
func (q *QueueMonitor) Depth(ctx context.Context) (int, error) {
	client := q.store.Client()
	if client == nil {
		return 0, store.ErrUnavailable
	}
	cctx, cancel := q.store.WithTimeout(ctx)
	defer cancel()
	v, err := client.Get(cctx, q.key).Int()
	q.store.Observe(err)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	queueDepthGauge.Set(float64(v))
	return v, nil
}

// IsFull reports whether the depth has reached the maximum. It reports
// false when the depth cannot be read.
func (q *QueueMonitor) IsFull(ctx context.Context) bool {
	d, err := q.Depth(ctx)
	if err != nil {
		return false
	}
	return d >= q.max
}

// Acquire admits one job. On success the returned release func must be
// called exactly once when the job reaches a terminal state; extra calls
// are no-ops. Release does not depend on the caller's context being alive.
// When the store is unavailable the job is admitted with a no-op release.
func (q *QueueMonitor) Acquire(ctx context.Context) (func(), error) {
	client := q.store.Client()
	if client == nil {
		failOpenTotal.WithLabelValues("queue").Inc()
		return func() {}, nil
	}
	cctx, cancel := q.store.WithTimeout(ctx)
	defer cancel()
	v, err := acquireScript.Run(cctx, client, []string{q.key}, q.max, q.ttl.Milliseconds()).Int()
	q.store.Observe(err)
	if err != nil {
		failOpenTotal.WithLabelValues("queue").Inc()
		return func() {}, nil
	}
	if v < 0 {
		return func() {}, ErrQueueFull
	}
	queueDepthGauge.Set(float64(v))

	var once sync.Once
	return func() {
		once.Do(func() { q.release(context.WithoutCancel(ctx)) })
	}, nil
}

func (q *QueueMonitor) release(ctx context.Context) {
	client := q.store.Client()
	cctx, cancel := q.store.WithTimeout(ctx)
	defer cancel()
	v, err := releaseScript.Run(cctx, client, []string{q.key}, strconv.FormatInt(q.ttl.Milliseconds(), 10)).Int()
	q.store.Observe(err)
	if err == nil {
		queueDepthGauge.Set(float64(v))
	}
}
