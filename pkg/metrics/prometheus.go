package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Prometheus struct {
	reportsIngested *prometheus.CounterVec
	geoResolutions  *prometheus.CounterVec
	indexOperations *prometheus.CounterVec
	indexSize       prometheus.Gauge
	useCaseTotal    *prometheus.CounterVec
	useCaseDuration *prometheus.HistogramVec
	httpDuration    *prometheus.HistogramVec
	grpcDuration    *prometheus.HistogramVec
	outboxDepth     prometheus.Gauge
	outboxEvents    *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer, serviceName string) *Prometheus {
	labels := prometheus.Labels{"service": serviceName}
	m := &Prometheus{
		reportsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gotracker_location_reports_total",
			Help:        "Location reports processed, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		geoResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gotracker_geo_resolutions_total",
			Help:        "Geo resolutions, by source and outcome.",
			ConstLabels: labels,
		}, []string{"source", "outcome"}),
		indexOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gotracker_index_operations_total",
			Help:        "Availability index maintenance operations.",
			ConstLabels: labels,
		}, []string{"operation", "status"}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gotracker_index_size",
			Help:        "Drivers currently held by the availability index.",
			ConstLabels: labels,
		}),
		useCaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "app_usecase_total",
			Help:        "Total number of Use Case executions.",
			ConstLabels: labels,
		}, []string{"use_case", "status"}),
		useCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "app_usecase_duration_seconds",
			Help:        "Use Case execution latency.",
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"use_case", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "app_http_duration_seconds",
			Help:        "Duration of HTTP requests.",
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}, []string{"method", "path", "status_code"}),
		grpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "grpc_duration_seconds",
			Help:        "Duration of gRPC requests.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"grpc_service", "grpc_method", "status_code"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "app_outbox_depth",
			Help:        "Events waiting in the outbox.",
			ConstLabels: labels,
		}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "app_outbox_events_processed_total",
			Help:        "Total outbox events processed.",
			ConstLabels: labels,
		}, []string{"status"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "app_duplicate_messages_total",
			Help:        "Messages dropped by the idempotency guard.",
			ConstLabels: labels,
		}, []string{"handler"}),
	}

	reg.MustRegister(
		m.reportsIngested,
		m.geoResolutions,
		m.indexOperations,
		m.indexSize,
		m.useCaseTotal,
		m.useCaseDuration,
		m.httpDuration,
		m.grpcDuration,
		m.outboxDepth,
		m.outboxEvents,
		m.duplicates,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

func (p *Prometheus) RecordReportIngested(outcome string) {
	p.reportsIngested.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RecordGeoResolution(source, outcome string) {
	p.geoResolutions.WithLabelValues(source, outcome).Inc()
}

func (p *Prometheus) RecordIndexOperation(op string, success bool) {
	p.indexOperations.WithLabelValues(op, statusLabel(success)).Inc()
}

func (p *Prometheus) SetIndexSize(size int) {
	p.indexSize.Set(float64(size))
}

func (p *Prometheus) RecordUseCaseExecution(useCase string, success bool, duration time.Duration) {
	status := statusLabel(success)
	p.useCaseTotal.WithLabelValues(useCase, status).Inc()
	p.useCaseDuration.WithLabelValues(useCase, status).Observe(duration.Seconds())
}

func (p *Prometheus) ObserveHTTPRequestDuration(method, path, code string, duration float64) {
	p.httpDuration.WithLabelValues(method, path, code).Observe(duration)
}

func (p *Prometheus) ObserveGRPCRequestDuration(service, method, code string, duration float64) {
	p.grpcDuration.WithLabelValues(service, method, code).Observe(duration)
}

func (p *Prometheus) SetOutboxDepth(depth int) {
	p.outboxDepth.Set(float64(depth))
}

func (p *Prometheus) IncOutboxEventsProcessed(status string) {
	p.outboxEvents.WithLabelValues(status).Inc()
}

func (p *Prometheus) IncDuplicateMessages(handler string) {
	p.duplicates.WithLabelValues(handler).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
