package metrics

import "time"

const (
	OutcomeAccepted  = "accepted"
	OutcomeDiscarded = "discarded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeThrottled = "throttled"
)

type Metrics interface {
	// Business
	RecordReportIngested(outcome string)
	RecordGeoResolution(source, outcome string)
	RecordIndexOperation(op string, success bool)
	SetIndexSize(size int)
	RecordUseCaseExecution(useCaseName string, success bool, duration time.Duration)

	// Infrastructure (HTTP & gRPC)
	ObserveHTTPRequestDuration(method, path, statusCode string, duration float64)
	ObserveGRPCRequestDuration(service, method, code string, duration float64)

	// Performance and Resilience
	SetOutboxDepth(depth int)
	IncOutboxEventsProcessed(status string)
	IncDuplicateMessages(handler string)
}
