package event

import (
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
)

type ChainDeps struct {
	Logger     logger.Logger
	Metrics    metrics.Metrics
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	DedupTTL   time.Duration
}

// BuildIngestChain assembles the worker pipeline:
// idempotency, then retries, then breaker and timeout, then the handler.
func BuildIngestChain(
	handler MessageHandler,
	store IdempotencyStore,
	deps ChainDeps,
) MessageHandler {
	if deps.Timeout <= 0 {
		deps.Timeout = 10 * time.Second
	}
	if deps.RetryBase <= 0 {
		deps.RetryBase = 200 * time.Millisecond
	}
	if deps.RetryMax <= 0 {
		deps.RetryMax = 5 * time.Second
	}
	if deps.DedupTTL <= 0 {
		deps.DedupTTL = 24 * time.Hour
	}
	h := WrapResilientConsumer(deps.Metrics, "IngestLocationReport", deps.Timeout, NewConsumerBreaker("ingest"), handler)
	h = WrapRetry(deps.Logger, deps.Metrics, "IngestLocationReport", deps.MaxRetries, Backoff{Base: deps.RetryBase, Max: deps.RetryMax}, h)
	if store != nil {
		h = WrapIdempotency(deps.Logger, deps.Metrics, store, "ingest", deps.DedupTTL, h)
	}
	return h
}
