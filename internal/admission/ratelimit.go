package admission

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"kokorod/internal/store"
)

const defaultRatePrefix = "ratelimit:"

// RateLimiter bounds the request rate per client over a trailing window.
type RateLimiter struct {
	store  *store.Store
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRateLimiter returns a limiter allowing maxRequests per window for each
// client key. st may be nil, in which case every call is allowed.
func NewRateLimiter(st *store.Store, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  st,
		max:    maxRequests,
		window: window,
		prefix: defaultRatePrefix,
		now:    time.Now,
	}
}

// Max is the configured number of requests per window.
func (l *RateLimiter) Max() int { return l.max }

// Window is the configured trailing window.
func (l *RateLimiter) Window() time.Duration { return l.window }

// Allow records an attempt for clientKey and reports whether it fits in the
// window together with the remaining budget. The current attempt is counted
// even when rejected, so remaining may be negative.
//
// Pruning, insertion, counting and expiry refresh run in one MULTI/EXEC
// transaction so concurrent attempts from the same client cannot both read
// a stale count.
func (l *RateLimiter) Allow(ctx context.Context, clientKey string) (bool, int) {
	client := l.store.Client()
	if client == nil {
		failOpenTotal.WithLabelValues("ratelimit").Inc()
		return true, l.max
	}
	now := l.now()
	nowMS := now.UnixMilli()
	windowStart := nowMS - l.window.Milliseconds()
	key := l.prefix + clientKey
	// Unique member so attempts within the same millisecond all count.
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + xid.New().String()

	cctx, cancel := l.store.WithTimeout(ctx)
	defer cancel()
	var card *redis.IntCmd
	_, err := client.TxPipelined(cctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(cctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(cctx, key, redis.Z{Score: float64(nowMS), Member: member})
		card = pipe.ZCard(cctx, key)
		pipe.Expire(cctx, key, l.window)
		return nil
	})
	l.store.Observe(err)
	if err != nil {
		failOpenTotal.WithLabelValues("ratelimit").Inc()
		return true, l.max
	}
	count := int(card.Val())
	return count <= l.max, l.max - count
}
