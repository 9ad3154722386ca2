package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DioGolang/GoTracker/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var statusCodes [600]string

func init() {
	for i := 100; i < 600; i++ {
		statusCodes[i] = strconv.Itoa(i)
	}
}

func statusCode(code int) string {
	switch {
	case code == 0:
		// nothing written, net/http sends 200
		return statusCodes[http.StatusOK]
	case code >= 100 && code < 600:
		return statusCodes[code]
	}
	return strconv.Itoa(code)
}

// HTTPMetrics observes request latency labelled by route pattern, so
// /drivers/{driverID} stays one series. Paths in skip (scrapes, health checks)
// are not observed.
func HTTPMetrics(m metrics.Metrics, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				m.ObserveHTTPRequestDuration(r.Method, route, statusCode(ww.Status()), time.Since(start).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
