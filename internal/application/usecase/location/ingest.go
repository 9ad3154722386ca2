package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultClockSkew = 5 * time.Second

type IngestConfig struct {
	ClockSkew             time.Duration
	LowConfidenceAccuracy float64
}

type IngestUseCaseImpl struct {
	Store      outbound.DriverStateStore
	Resolver   outbound.GeoResolver
	Maintainer IndexApplier
	Publisher  outbound.EventPublisher
	Metrics    metrics.Metrics
	Logger     logger.Logger
	Config     IngestConfig
	Now        func() time.Time
}

func NewIngestUseCase(
	store outbound.DriverStateStore,
	resolver outbound.GeoResolver,
	maintainer IndexApplier,
	publisher outbound.EventPublisher,
	m metrics.Metrics,
	log logger.Logger,
	cfg IngestConfig,
) *IngestUseCaseImpl {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	if cfg.LowConfidenceAccuracy <= 0 {
		cfg.LowConfidenceAccuracy = entity.DefaultLowConfidenceAccuracyMeters
	}
	return &IngestUseCaseImpl{
		Store:      store,
		Resolver:   resolver,
		Maintainer: maintainer,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     log.With(logger.String("component", "ingest")),
		Config:     cfg,
		Now:        time.Now,
	}
}

func (uc *IngestUseCaseImpl) Execute(ctx context.Context, input IngestInput) (IngestOutput, error) {
	ctx, span := otel.Tracer("location-usecase").Start(ctx, "IngestUseCase.Execute",
		trace.WithAttributes(attribute.String("driver.id", input.DriverID)))
	defer span.End()

	report := input.Report()
	if err := report.Validate(uc.Now(), uc.Config.ClockSkew); err != nil {
		return uc.reject(ctx, span, err)
	}

	stored, err := uc.Store.Get(ctx, report.DriverID)
	switch {
	case err == nil:
		if report.ReportedAt.Before(stored.LastUpdatedAt) {
			return uc.discard(ctx, report, &stored), nil
		}
	case !errors.Is(err, entity.ErrDriverNotFound):
		return uc.fail(span, fmt.Errorf("load driver state: %w", err))
	}

	if err := uc.Publisher.Admit(ctx); err != nil {
		return uc.throttle(ctx, span, err)
	}

	location, stale, err := uc.resolve(ctx, report)
	if err != nil {
		return uc.reject(ctx, span, err)
	}

	state := entity.DriverState{
		DriverID:      report.DriverID,
		Available:     *report.Available,
		Location:      location,
		LocationStale: stale,
		LastUpdatedAt: report.ReportedAt.UTC(),
	}
	if v := report.VehicleID; v != nil {
		state.VehicleID = strings.TrimSpace(*v)
		if state.VehicleID == "" {
			state = state.WithVehicleCleared()
		}
	}
	previous, committed, err := uc.Store.Upsert(ctx, state)
	if errors.Is(err, entity.ErrStaleReport) {
		// lost the race against a newer report for the same driver
		return uc.discard(ctx, report, nil), nil
	}
	if err != nil {
		return uc.fail(span, fmt.Errorf("upsert driver state: %w", err))
	}

	uc.afterCommit(ctx, previous, committed)

	uc.Metrics.RecordReportIngested(metrics.OutcomeAccepted)
	span.SetAttributes(attribute.Int64("driver.version", int64(committed.Version)))
	return IngestOutput{
		DriverID:      committed.DriverID,
		Status:        StatusAccepted,
		LastUpdatedAt: committed.LastUpdatedAt,
		LocationStale: committed.LocationStale,
	}, nil
}

// resolve returns the location to store. A nil record with stale=false means
// the report carries no position at all and the stored one is kept.
func (uc *IngestUseCaseImpl) resolve(ctx context.Context, r entity.LocationReport) (*entity.GeoRecord, bool, error) {
	coords, hasCoords := r.Coordinates()

	if hasCoords && r.LowConfidence(uc.Config.LowConfidenceAccuracy) && r.SourceIP != "" {
		rec, err := uc.Resolver.Resolve(ctx, outbound.GeoQuery{SourceIP: r.SourceIP})
		if err == nil {
			return &rec, false, nil
		}
		uc.Logger.Debug(ctx, "ip resolution failed, keeping low-confidence coordinates",
			logger.String("driver_id", r.DriverID), logger.WithError(err))
	}

	switch {
	case hasCoords:
		return uc.lookup(ctx, r, outbound.GeoQuery{Coordinates: &coords, SourceIP: r.SourceIP})
	case r.SourceIP != "":
		return uc.lookup(ctx, r, outbound.GeoQuery{SourceIP: r.SourceIP})
	default:
		return nil, false, nil
	}
}

func (uc *IngestUseCaseImpl) lookup(ctx context.Context, r entity.LocationReport, q outbound.GeoQuery) (*entity.GeoRecord, bool, error) {
	rec, err := uc.Resolver.Resolve(ctx, q)
	if err == nil {
		return &rec, false, nil
	}
	if errors.Is(err, entity.ErrResolutionInvalid) {
		return nil, false, fmt.Errorf("resolve location: %w", err)
	}
	uc.Logger.Warn(ctx, "geo resolution unavailable, keeping previous location",
		logger.String("driver_id", r.DriverID),
		logger.String("source_ip", r.SourceIP),
		logger.WithError(err),
	)
	return nil, true, nil
}

// afterCommit drives the derived views. The commit is already the fact:
// failures here are logged and left to the maintainer and the outbox relay.
func (uc *IngestUseCaseImpl) afterCommit(ctx context.Context, previous *entity.DriverState, committed entity.DriverState) {
	if err := uc.Maintainer.Apply(ctx, committed); err != nil {
		uc.Logger.Warn(ctx, "index maintenance deferred",
			logger.String("driver_id", committed.DriverID), logger.WithError(err))
	}
	for _, ev := range entity.EventsFor(previous, committed) {
		if err := uc.Publisher.Publish(ctx, ev); err != nil {
			uc.Logger.Error(ctx, "failed to publish driver event",
				logger.String("driver_id", committed.DriverID),
				logger.String("event", ev.GetName()),
				logger.WithError(fmt.Errorf("%w: %w", entity.ErrPublish, err)),
			)
		}
	}
}

func (uc *IngestUseCaseImpl) discard(ctx context.Context, r entity.LocationReport, stored *entity.DriverState) IngestOutput {
	uc.Metrics.RecordReportIngested(metrics.OutcomeDiscarded)
	uc.Logger.Debug(ctx, "stale report discarded",
		logger.String("driver_id", r.DriverID), logger.Time("reported_at", r.ReportedAt))

	out := IngestOutput{DriverID: r.DriverID, Status: StatusDiscarded}
	if stored == nil {
		if s, err := uc.Store.Get(ctx, r.DriverID); err == nil {
			stored = &s
		}
	}
	if stored != nil {
		out.LastUpdatedAt = stored.LastUpdatedAt
		out.LocationStale = stored.LocationStale
	}
	return out
}

func (uc *IngestUseCaseImpl) reject(ctx context.Context, span trace.Span, err error) (IngestOutput, error) {
	uc.Metrics.RecordReportIngested(metrics.OutcomeRejected)
	span.SetStatus(codes.Error, "report rejected")
	uc.Logger.Info(ctx, "report rejected", logger.WithError(err))
	return IngestOutput{}, err
}

func (uc *IngestUseCaseImpl) throttle(ctx context.Context, span trace.Span, err error) (IngestOutput, error) {
	uc.Metrics.RecordReportIngested(metrics.OutcomeThrottled)
	span.SetStatus(codes.Error, "report throttled")
	uc.Logger.Warn(ctx, "report not admitted", logger.WithError(err))
	return IngestOutput{}, err
}

func (uc *IngestUseCaseImpl) fail(span trace.Span, err error) (IngestOutput, error) {
	uc.Metrics.RecordReportIngested(metrics.OutcomeFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return IngestOutput{}, err
}
