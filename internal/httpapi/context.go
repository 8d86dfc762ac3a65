package httpapi

import (
	"context"
	"net/http"

	"kokorod/internal/service"
)

// serverBaseCtx is a process-level context canceled when shutdown gives up
// waiting for in-flight requests. Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

type ctxKey int

const requestContextKey ctxKey = iota

// requestContextMaker creates per-request correlation data.
type requestContextMaker interface {
	NewRequestContext(remoteAddr string) service.RequestContext
}

// Correlation assigns a RequestContext to every request and echoes its id in
// X-Request-ID on every response. The client identity is the TCP peer unless
// that peer is a trusted proxy.
func Correlation(m requestContextMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := m.NewRequestContext(clientAddr(r))
			w.Header().Set("X-Request-ID", rc.ID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestContextKey, rc)))
		})
	}
}

// RequestContextFrom returns the RequestContext installed by Correlation.
func RequestContextFrom(ctx context.Context) (service.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(service.RequestContext)
	return rc, ok
}
