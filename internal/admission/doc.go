// Package admission implements the store-backed admission checks that run
// before any synthesis work is committed:
//
//   - ratelimit.go: per-client sliding-window limiter (sorted set per key).
//   - queue.go: global queue-depth counter with a scoped acquire/release guard.
//   - metrics.go: fail-open and depth instrumentation.
//
// Both components fail open when the counter store is missing or
// unreachable. The degraded state is observable through store.Reachable and
// the kokorod_admission_failopen_total counter.
package admission
