package event

import (
	"context"
	"errors"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	carrier "github.com/DioGolang/GoTracker/pkg/otel"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	Workers     int
	SendTimeout time.Duration
	RetryBase   time.Duration
	RetryMax    time.Duration
}

var DefaultRelayConfig = RelayConfig{
	Interval:    100 * time.Millisecond,
	BatchSize:   100,
	Workers:     10,
	SendTimeout: 5 * time.Second,
	RetryBase:   500 * time.Millisecond,
	RetryMax:    time.Minute,
}

// OutboxRelay moves events from the Outbox to a Sink. Failed deliveries go
// back to the outbox with exponential backoff, so delivery is at-least-once.
type OutboxRelay struct {
	outbox  *Outbox
	sink    Sink
	cb      *gobreaker.CircuitBreaker
	logger  logger.Logger
	metrics metrics.Metrics
	cfg     RelayConfig
	now     func() time.Time
}

func NewOutboxRelay(outbox *Outbox, sink Sink, log logger.Logger, m metrics.Metrics, cfg RelayConfig) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRelayConfig.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRelayConfig.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultRelayConfig.Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultRelayConfig.SendTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRelayConfig.RetryBase
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = max(DefaultRelayConfig.RetryMax, cfg.RetryBase)
	}

	log = log.With(logger.String("component", "outbox-relay"), logger.String("sink", sink.Name()))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "outbox-" + sink.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "event sink breaker changed state",
				logger.String("from", from.String()), logger.String("to", to.String()))
		},
	})

	return &OutboxRelay{
		outbox:  outbox,
		sink:    sink,
		cb:      cb,
		logger:  log,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.outbox.wake:
		}
		for r.processBatch(ctx, r.now()) == r.cfg.BatchSize {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Flush tries every pending event once, ignoring backoff. Used on shutdown.
func (r *OutboxRelay) Flush(ctx context.Context) {
	pending := r.outbox.Len()
	for pending > 0 && ctx.Err() == nil {
		n := r.processBatch(ctx, time.Unix(1<<62, 0))
		if n == 0 {
			return
		}
		pending -= n
	}
	if left := r.outbox.Len(); left > 0 {
		r.logger.Warn(ctx, "outbox not empty on shutdown", logger.Int("pending", left))
	}
}

// processBatch delivers the events due at now and returns how many it took.
func (r *OutboxRelay) processBatch(ctx context.Context, now time.Time) int {
	batch := r.outbox.drain(now, r.cfg.BatchSize)
	if len(batch) == 0 {
		return 0
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, env := range batch {
		g.Go(func() error {
			r.deliver(gCtx, env)
			return nil
		})
	}
	_ = g.Wait()
	return len(batch)
}

func (r *OutboxRelay) deliver(ctx context.Context, env *envelope) {
	ctx = carrier.ResumeTrace(ctx, env.trace)
	ctx, span := otel.Tracer("outbox-relay").Start(ctx, "OutboxRelay.deliver",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.id", env.event.GetID()),
			attribute.String("event.name", env.event.GetName()),
			attribute.Int("event.attempt", env.attempts+1),
		))
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.sink.Send(sendCtx, env.event)
	})
	if err == nil {
		r.metrics.IncOutboxEventsProcessed("published")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	env.attempts++
	wait := r.backoff(env.attempts)
	env.notBefore = r.now().Add(wait)
	r.outbox.requeue(env)
	r.metrics.IncOutboxEventsProcessed("retry")

	if errors.Is(err, gobreaker.ErrOpenState) {
		return
	}
	r.logger.Warn(ctx, "failed to publish event, will retry",
		logger.String("event_id", env.event.GetID()),
		logger.String("event", env.event.GetName()),
		logger.Int("attempt", env.attempts),
		logger.Duration("wait", wait),
		logger.WithError(err),
	)
}

func (r *OutboxRelay) backoff(attempt int) time.Duration {
	return Backoff{Base: r.cfg.RetryBase, Max: r.cfg.RetryMax}.Delay(attempt)
}
