package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/lib/pq"
)

const (
	driverColumns = `driver_id, available, vehicle_id, location_id, source_ip, country, city,
       latitude, longitude, location_source, location_stale, last_updated_at, version`

	lockDriverQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	selectDriverQuery = `SELECT ` + driverColumns + ` FROM driver_states WHERE driver_id = $1`

	selectManyDriversQuery = `SELECT ` + driverColumns + ` FROM driver_states WHERE driver_id = ANY($1)`

	changedSinceQuery = `SELECT ` + driverColumns + `, committed_at FROM driver_states
WHERE committed_at >= $1 ORDER BY committed_at, driver_id`

	upsertDriverQuery = `INSERT INTO driver_states (` + driverColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (driver_id) DO UPDATE SET
    available       = EXCLUDED.available,
    vehicle_id      = EXCLUDED.vehicle_id,
    location_id     = EXCLUDED.location_id,
    source_ip       = EXCLUDED.source_ip,
    country         = EXCLUDED.country,
    city            = EXCLUDED.city,
    latitude        = EXCLUDED.latitude,
    longitude       = EXCLUDED.longitude,
    location_source = EXCLUDED.location_source,
    location_stale  = EXCLUDED.location_stale,
    last_updated_at = EXCLUDED.last_updated_at,
    version         = EXCLUDED.version,
    committed_at    = clock_timestamp()`
)

// PostgresDriverStateStore persists driver states in PostgreSQL. Upserts for
// the same driver are serialized with a transaction-scoped advisory lock,
// which also covers the very first insert where no row exists to lock.
type PostgresDriverStateStore struct {
	db  *sql.DB
	uow *UnitOfWork
}

var _ outbound.DriverStateStore = (*PostgresDriverStateStore)(nil)

func NewPostgresDriverStateStore(db *sql.DB) *PostgresDriverStateStore {
	return &PostgresDriverStateStore{db: db, uow: NewUnitOfWork(db)}
}

func (s *PostgresDriverStateStore) Upsert(ctx context.Context, state entity.DriverState) (*entity.DriverState, entity.DriverState, error) {
	if err := state.Validate(); err != nil {
		return nil, entity.DriverState{}, err
	}
	// TIMESTAMPTZ keeps microseconds.
	state.LastUpdatedAt = state.LastUpdatedAt.UTC().Truncate(time.Microsecond)

	var (
		prev      *entity.DriverState
		committed entity.DriverState
	)
	err := s.uow.Do(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockDriverQuery, state.DriverID); err != nil {
			return fmt.Errorf("lock driver %s: %w", state.DriverID, err)
		}

		current, err := scanDriver(tx.QueryRowContext(ctx, selectDriverQuery, state.DriverID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load driver %s: %w", state.DriverID, err)
		default:
			prev = &current
		}

		next, err := state.Supersede(prev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertDriverQuery, driverArgs(next)...); err != nil {
			return fmt.Errorf("save driver %s: %w", state.DriverID, err)
		}
		committed = next
		return nil
	})
	if err != nil {
		return nil, entity.DriverState{}, err
	}
	return prev, committed, nil
}

func (s *PostgresDriverStateStore) Get(ctx context.Context, driverID string) (entity.DriverState, error) {
	st, err := scanDriver(s.db.QueryRowContext(ctx, selectDriverQuery, driverID))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DriverState{}, fmt.Errorf("%w: %s", entity.ErrDriverNotFound, driverID)
	}
	if err != nil {
		return entity.DriverState{}, fmt.Errorf("load driver %s: %w", driverID, err)
	}
	return st, nil
}

func (s *PostgresDriverStateStore) GetMany(ctx context.Context, driverIDs []string) (map[string]entity.DriverState, error) {
	out := make(map[string]entity.DriverState, len(driverIDs))
	if len(driverIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, selectManyDriversQuery, pq.Array(driverIDs))
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out[st.DriverID] = st
	}
	return out, rows.Err()
}

// ChangedSince streams rows by committed_at, which is set from the database
// clock on every upsert.
func (s *PostgresDriverStateStore) ChangedSince(ctx context.Context, since time.Time, fn func(entity.DriverState, time.Time) error) error {
	rows, err := s.db.QueryContext(ctx, changedSinceQuery, since.UTC())
	if err != nil {
		return fmt.Errorf("list changed drivers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var committedAt time.Time
		st, err := scanDriver(rows, &committedAt)
		if err != nil {
			return err
		}
		if err := fn(st, committedAt.UTC()); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDriver reads driverColumns followed by any extra destinations.
func scanDriver(row rowScanner, extra ...any) (entity.DriverState, error) {
	var (
		st             entity.DriverState
		locationID     sql.NullString
		sourceIP       string
		country, city  string
		lat, lon       sql.NullFloat64
		locationSource sql.NullString
	)
	dest := []any{
		&st.DriverID, &st.Available, &st.VehicleID, &locationID, &sourceIP, &country, &city,
		&lat, &lon, &locationSource, &st.LocationStale, &st.LastUpdatedAt, &st.Version,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return entity.DriverState{}, err
	}

	if lat.Valid && lon.Valid {
		loc, err := entity.NewGeoRecord(lat.Float64, lon.Float64, entity.GeoSource(locationSource.String),
			entity.WithID(locationID.String),
			entity.WithSourceIP(sourceIP),
			entity.WithPlace(country, city),
		)
		if err != nil {
			return entity.DriverState{}, fmt.Errorf("corrupt location for driver %s: %w", st.DriverID, err)
		}
		st.Location = &loc
	}
	st.LastUpdatedAt = st.LastUpdatedAt.UTC()
	return st, nil
}

func driverArgs(st entity.DriverState) []any {
	var (
		locationID     sql.NullString
		sourceIP       string
		country, city  string
		lat, lon       sql.NullFloat64
		locationSource sql.NullString
	)
	if loc := st.Location; loc != nil {
		locationID = sql.NullString{String: loc.ID(), Valid: true}
		sourceIP, country, city = loc.SourceIP(), loc.Country(), loc.City()
		lat = sql.NullFloat64{Float64: loc.Latitude(), Valid: true}
		lon = sql.NullFloat64{Float64: loc.Longitude(), Valid: true}
		locationSource = sql.NullString{String: string(loc.Source()), Valid: true}
	}
	return []any{
		st.DriverID, st.Available, st.VehicleID, locationID, sourceIP, country, city,
		lat, lon, locationSource, st.LocationStale, st.LastUpdatedAt.UTC(), st.Version,
	}
}
