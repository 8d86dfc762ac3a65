package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kokorod/internal/service"
	"kokorod/pkg/types"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Kokoro-82M TTS Server"

// Service defines the methods required by the HTTP API layer.
type Service interface {
	NewRequestContext(remoteAddr string) service.RequestContext
	Generate(ctx context.Context, rc service.RequestContext, req types.GenerateRequest) (*service.Speech, error)
	Voices() types.VoicesResponse
	Health(ctx context.Context) types.HealthResponse
	Ready() bool
	Version() string
}

// exposedHeaders are readable by browser clients.
var exposedHeaders = []string{"X-Request-ID", "X-Duration-MS", "X-Processing-Time-MS", "X-RateLimit-Remaining", "Content-Disposition"}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: correlation id, recoverer
	r.Use(Correlation(svc))
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: exposedHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints only; audio is already encoded.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, types.InfoResponse{
			Name:    ServiceName,
			Version: svc.Version(),
			Health:  "/health",
			Endpoints: map[string]string{
				"generate": "POST /generate",
				"voices":   "GET /voices",
				"health":   "GET /health",
				"metrics":  "GET /metrics",
			},
		})
	})

	r.Get("/voices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, svc.Voices())
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, svc.Health(r.Context()))
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		rc, ok := RequestContextFrom(r.Context())
		if !ok {
			rc = svc.NewRequestContext(clientAddr(r))
		}
		lvl := requestLogLevel(r)
		// Content-Type check
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			observeGenerate(outcomeInvalid)
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", "", rc.ID)
			return
		}
		// Limit body size (configurable, default 1MiB)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			observeGenerate(outcomeInvalid)
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body", "", rc.ID)
			return
		}
		if lvl >= LevelInfo {
			zlog.Info().Str("request_id", rc.ID).Str("voice", req.Voice).Int("text_len", utf8.RuneCountInString(req.Text)).Str("format", req.Format).Msg("generate start")
		}

		// Join server base context with request context so a forced shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
			defer tcancel()
		}

		sp, err := svc.Generate(ctx, rc, req)
		if err != nil {
			// Client went away; nobody is listening for the response.
			if r.Context().Err() != nil {
				observeGenerate(outcomeClientGone)
				logEnd(lvl, rc, statusClientClosed, err)
				return
			}
			status, outcome := writeGenerateError(w, rc, err)
			observeGenerate(outcome)
			logEnd(lvl, rc, status, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", sp.ContentType)
		h.Set("Content-Length", strconv.Itoa(len(sp.Audio)))
		h.Set("Content-Disposition", `attachment; filename="speech.`+sp.Format+`"`)
		h.Set("X-Duration-MS", strconv.FormatInt(sp.Duration.Milliseconds(), 10))
		h.Set("X-Processing-Time-MS", strconv.FormatInt(sp.Processing.Milliseconds(), 10))
		if sp.RateLimitRemaining >= 0 {
			h.Set("X-RateLimit-Remaining", strconv.Itoa(sp.RateLimitRemaining))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(sp.Audio)
		observeGenerate(outcomeOK)
		observeAudio(sp.Format, sp.Duration)
		logEnd(lvl, rc, http.StatusOK, nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// writeGenerateError maps service and engine errors to responses and returns
// the status written and the outcome to record.
func writeGenerateError(w http.ResponseWriter, rc service.RequestContext, err error) (int, string) {
	outcome := outcomeFailed
	switch {
	case service.IsValidationError(err):
		outcome = outcomeInvalid
	case service.IsRateLimitExceeded(err):
		outcome = outcomeRateLimit
		w.Header().Set("X-RateLimit-Remaining", "0")
	case service.IsCapacityExceeded(err):
		outcome = outcomeQueueFull
	case errors.Is(err, service.ErrShuttingDown):
		outcome = outcomeShuttingDown
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "speech generation timed out", "", rc.ID)
		return http.StatusGatewayTimeout, outcomeTimeout
	}
	var detail string
	var d detailer
	if errors.As(err, &d) {
		detail = d.ErrorDetail()
	}
	var he HTTPError
	if errors.As(err, &he) {
		writeJSONError(w, he.StatusCode(), he.Error(), detail, rc.ID)
		return he.StatusCode(), outcome
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error(), detail, rc.ID)
	return http.StatusInternalServerError, outcome
}

func logEnd(lvl LogLevel, rc service.RequestContext, status int, err error) {
	if lvl == LevelOff || (lvl == LevelError && status < 500) {
		return
	}
	z := zlog.Info()
	if status >= 500 {
		z = zlog.Error()
	}
	z = z.Str("request_id", rc.ID).Int("status", status).Dur("dur", time.Since(rc.Start))
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("generate end")
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rc, _ := RequestContextFrom(r.Context())
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response", "", rc.ID)
	}
}
