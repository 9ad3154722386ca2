package geo

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	outcomeResolved    = "resolved"
	outcomeUnavailable = "unavailable"
	outcomeInvalid     = "invalid"
	outcomeNoPlace     = "resolved_without_place"
)

// IPLocator maps a routable address to a position.
type IPLocator interface {
	Locate(ctx context.Context, ip netip.Addr) (entity.GeoRecord, error)
}

// ReverseGeocoder names the country and city around a coordinate.
type ReverseGeocoder interface {
	Place(ctx context.Context, lat, lon float64) (country, city string, err error)
}

type Resolver struct {
	locator  IPLocator
	geocoder ReverseGeocoder
	timeout  time.Duration
	logger   logger.Logger
	metrics  metrics.Metrics
}

var _ outbound.GeoResolver = (*Resolver)(nil)

// NewResolver builds the resolver. geocoder may be nil, in which case GPS
// records carry no country or city.
func NewResolver(locator IPLocator, geocoder ReverseGeocoder, timeout time.Duration, log logger.Logger, m metrics.Metrics) *Resolver {
	return &Resolver{
		locator:  locator,
		geocoder: geocoder,
		timeout:  timeout,
		logger:   log,
		metrics:  m,
	}
}

func (r *Resolver) Resolve(ctx context.Context, q outbound.GeoQuery) (entity.GeoRecord, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("geo-resolver").Start(ctx, "GeoResolver.Resolve")
	defer span.End()

	var (
		rec    entity.GeoRecord
		err    error
		source = entity.GeoSourceGPS
	)
	switch {
	case q.Coordinates != nil:
		rec, err = r.fromCoordinates(ctx, *q.Coordinates, q.SourceIP)
	case q.SourceIP != "":
		source = entity.GeoSourceIP
		rec, err = r.fromIP(ctx, q.SourceIP)
	default:
		err = fmt.Errorf("%w: neither coordinates nor source ip", entity.ErrResolutionInvalid)
	}

	span.SetAttributes(attribute.String("geo.source", string(source)))
	switch {
	case err == nil:
		if rec.Country() == "" && rec.City() == "" && source == entity.GeoSourceGPS && r.geocoder != nil {
			r.metrics.RecordGeoResolution(string(source), outcomeNoPlace)
		} else {
			r.metrics.RecordGeoResolution(string(source), outcomeResolved)
		}
	case errors.Is(err, entity.ErrResolutionInvalid):
		r.metrics.RecordGeoResolution(string(source), outcomeInvalid)
		span.SetStatus(codes.Error, err.Error())
	default:
		r.metrics.RecordGeoResolution(string(source), outcomeUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rec, err
}

func (r *Resolver) fromCoordinates(ctx context.Context, c entity.Coordinates, sourceIP string) (entity.GeoRecord, error) {
	if err := c.Validate(); err != nil {
		return entity.GeoRecord{}, fmt.Errorf("%w: %w", entity.ErrResolutionInvalid, err)
	}

	opts := []entity.GeoRecordOption{entity.WithSourceIP(sourceIP)}
	if r.geocoder != nil {
		country, city, err := r.geocoder.Place(ctx, c.Latitude, c.Longitude)
		if err != nil {
			r.logger.Debug(ctx, "Reverse geocode failed, keeping coordinates only",
				logger.Float64("lat", c.Latitude),
				logger.Float64("lng", c.Longitude),
				logger.WithError(err),
			)
		} else {
			opts = append(opts, entity.WithPlace(country, city))
		}
	}
	return entity.NewGeoRecord(c.Latitude, c.Longitude, entity.GeoSourceGPS, opts...)
}

func (r *Resolver) fromIP(ctx context.Context, raw string) (entity.GeoRecord, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return entity.GeoRecord{}, fmt.Errorf("%w: %q is not an ip address", entity.ErrResolutionInvalid, raw)
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return entity.GeoRecord{}, fmt.Errorf("%w: %s is not publicly routable", entity.ErrResolutionUnavailable, addr)
	}
	if r.locator == nil {
		return entity.GeoRecord{}, fmt.Errorf("%w: no ip locator configured", entity.ErrResolutionUnavailable)
	}

	rec, err := r.locator.Locate(ctx, addr)
	if err != nil {
		if errors.Is(err, entity.ErrResolutionInvalid) || errors.Is(err, entity.ErrResolutionUnavailable) {
			return entity.GeoRecord{}, err
		}
		return entity.GeoRecord{}, fmt.Errorf("%w: %w", entity.ErrResolutionUnavailable, err)
	}
	return rec, nil
}
