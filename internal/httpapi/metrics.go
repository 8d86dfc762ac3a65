package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of POST /generate. The first three are admission rejections and
// also count as backpressure.
const (
	outcomeRateLimit    = "rate_limit"
	outcomeQueueFull    = "queue_full"
	outcomeShuttingDown = "shutting_down"
	outcomeOK           = "ok"
	outcomeInvalid      = "invalid"
	outcomeTimeout      = "timeout"
	outcomeClientGone   = "client_gone"
	outcomeFailed       = "failed"
)

// statusClientClosed is recorded when the client left before a response was written.
const statusClientClosed = 499

var (
	backpressureReasons = []string{outcomeRateLimit, outcomeQueueFull, outcomeShuttingDown}
	generateOutcomes    = append([]string{outcomeOK, outcomeInvalid, outcomeTimeout, outcomeClientGone, outcomeFailed}, backpressureReasons...)
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kokorod",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status; 499 means the client went away",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kokorod",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method",
			// synthesis of long texts runs into tens of seconds
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"route", "method"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kokorod",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kokorod",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Generate requests turned away by admission control: rate_limit, queue_full or shutting_down",
		},
		[]string{"reason"},
	)

	generateOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kokorod",
			Subsystem: "generate",
			Name:      "outcomes_total",
			Help:      "POST /generate results by outcome",
		},
		[]string{"outcome"},
	)

	generateAudioSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kokorod",
			Subsystem: "generate",
			Name:      "audio_seconds",
			Help:      "Playback length of generated speech by format",
			Buckets:   []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal, generateOutcomesTotal, generateAudioSeconds)
	// expose every series at zero so rate() works before the first rejection
	for _, r := range backpressureReasons {
		backpressureTotal.WithLabelValues(r)
	}
	for _, o := range generateOutcomes {
		generateOutcomesTotal.WithLabelValues(o)
	}
}

// MetricsMiddleware instruments requests for Prometheus. A handler that
// writes nothing because the client disconnected is counted as 499.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
			if r.Context().Err() != nil {
				status = statusClientClosed
			}
		}
		route := routePattern(r)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the matched chi route pattern. Unrouted requests share
// one label so arbitrary paths cannot grow the series count.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// observeGenerate counts one /generate result.
func observeGenerate(outcome string) {
	generateOutcomesTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case outcomeRateLimit, outcomeQueueFull, outcomeShuttingDown:
		backpressureTotal.WithLabelValues(outcome).Inc()
	}
}

func observeAudio(format string, d time.Duration) {
	generateAudioSeconds.WithLabelValues(format).Observe(d.Seconds())
}
