package web

import (
	"net/http"

	"github.com/DioGolang/GoTracker/internal/infra/web/handler"
	"github.com/DioGolang/GoTracker/internal/infra/web/middleware"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
)

type RouterDeps struct {
	ServiceName string
	Logger      logger.Logger
	Metrics     metrics.Metrics
	Gatherer    prometheus.Gatherer
	Location    *handler.Location
	Health      http.Handler
	// RateLimiter guards the ingest route; nil disables it.
	RateLimiter *middleware.IPRateLimiter
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(otelchi.Middleware(d.ServiceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.HTTPMetrics(d.Metrics, "/metrics", "/health"))

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Health != nil {
		r.Handle("/health", d.Health)
	}

	r.Route("/api/v1", func(r chi.Router) {
		ingest := r.With()
		if d.RateLimiter != nil {
			ingest = r.With(d.RateLimiter.Handler(d.Logger))
		}
		ingest.Post("/locations", d.Location.Report)

		r.Get("/drivers/{driverID}", d.Location.GetDriver)
		r.Get("/dispatch/nearest", d.Location.Nearest)
		r.Post("/admin/index/rebuild", d.Location.RebuildIndex)
	})

	return r
}
