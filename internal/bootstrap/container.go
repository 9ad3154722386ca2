package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DioGolang/GoTracker/configs"
	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"github.com/DioGolang/GoTracker/internal/infra/database"
	"github.com/DioGolang/GoTracker/internal/infra/event"
	"github.com/DioGolang/GoTracker/internal/infra/geo"
	"github.com/DioGolang/GoTracker/internal/infra/index"
	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	SinkAMQP  = "amqp"
	SinkNATS  = "nats"
	SinkLog   = "log"
	SinkLocal = "local"
)

// Role tells New what the process does with driver state.
type Role string

const (
	// RoleAPI ingests reports and answers queries; the only role that can
	// run on a process-local store.
	RoleAPI Role = "api"
	// RoleWorker ingests reports from the broker.
	RoleWorker Role = "worker"
	// RoleDispatch answers queries only.
	RoleDispatch Role = "dispatch"
)

// Container owns every connection a process opens and the components wired
// on top of them. Close releases them in reverse order.
type Container struct {
	Config   *configs.Conf
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  metrics.Metrics

	DB    *sql.DB
	Redis *redis.Client
	AMQP  *amqp.Connection
	NATS  *nats.Conn

	Store      outbound.DriverStateStore
	Index      outbound.AvailabilityIndex
	Resolver   *geo.Resolver
	Outbox     *event.Outbox
	Relay      *event.OutboxRelay
	Maintainer *location.IndexMaintainer
	// Events receives relayed events when the local sink is enabled.
	Events *events.Dispatcher

	Ingest    location.IngestUseCase
	Nearest   location.NearestUseCase
	GetDriver location.GetDriverUseCase

	closers []func() error
}

func New(ctx context.Context, cfg *configs.Conf, log logger.Logger, role Role) (*Container, error) {
	if err := checkTopology(cfg, role); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	c := &Container{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  metrics.NewPrometheusMetrics(reg, cfg.ServiceName),
		Events:   events.NewDispatcher(),
	}
	if err := c.wire(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wire(ctx context.Context) error {
	var err error
	if c.Store, err = c.buildStore(ctx); err != nil {
		return err
	}
	if c.Index, err = c.buildIndex(ctx); err != nil {
		return err
	}
	if c.Resolver, err = c.buildResolver(); err != nil {
		return err
	}
	sink, err := c.buildSink(ctx)
	if err != nil {
		return err
	}

	cfg := c.Config
	c.Outbox = event.NewOutbox(cfg.OutboxCapacity, c.Metrics)
	c.Relay = event.NewOutboxRelay(c.Outbox, sink, c.Logger, c.Metrics, event.RelayConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		Workers:     cfg.OutboxWorkers,
		SendTimeout: cfg.OutboxSendTimeout,
		RetryBase:   cfg.OutboxRetryBase,
		RetryMax:    cfg.OutboxRetryMax,
	})
	c.Maintainer = location.NewIndexMaintainer(c.Index, c.Store, c.Logger, c.Metrics, location.MaintainerConfig{
		ReconcileInterval: cfg.IndexReconcileInterval,
		RebuildInterval:   cfg.IndexRebuildInterval,
		StaleAfter:        cfg.DriverStaleAfter,
		FollowLag:         cfg.IndexFollowLag,
	})

	ingest := location.NewIngestUseCase(c.Store, c.Resolver, c.Maintainer, c.Outbox, c.Metrics, c.Logger, location.IngestConfig{
		ClockSkew:             cfg.IngestClockSkew,
		LowConfidenceAccuracy: cfg.GeoLowConfidenceAccuracy,
	})
	nearest := location.NewNearestUseCase(c.Index, c.Store, location.NearestConfig{
		DefaultK:        cfg.NearestDefaultK,
		MaxK:            cfg.NearestMaxK,
		DefaultRadiusKm: cfg.NearestDefaultRadiusKm,
		MaxRadiusKm:     cfg.NearestMaxRadiusKm,
	})
	c.Ingest = &location.IngestMetricsDecorator{Next: ingest, Metrics: c.Metrics}
	c.Nearest = &location.NearestMetricsDecorator{Next: nearest, Metrics: c.Metrics}
	c.GetDriver = &location.GetDriverMetricsDecorator{Next: location.NewGetDriverUseCase(c.Store), Metrics: c.Metrics}
	return nil
}

// checkTopology refuses a memory store outside the api role: a worker would
// write where nobody reads and a dispatcher would read where nobody writes.
func checkTopology(cfg *configs.Conf, role Role) error {
	switch role {
	case RoleAPI:
		return nil
	case RoleWorker, RoleDispatch:
		if cfg.StateStore == BackendMemory || cfg.StateStore == "" {
			return fmt.Errorf("STATE_STORE=%s is private to one process; the %s role needs a shared store (%s)",
				BackendMemory, role, BackendPostgres)
		}
		return nil
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

func (c *Container) buildStore(ctx context.Context) (outbound.DriverStateStore, error) {
	switch c.Config.StateStore {
	case BackendMemory, "":
		return database.NewMemoryDriverStateStore(), nil
	case BackendPostgres:
		db, err := c.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return database.NewPostgresDriverStateStore(db), nil
	default:
		return nil, fmt.Errorf("unknown STATE_STORE %q", c.Config.StateStore)
	}
}

func (c *Container) buildIndex(ctx context.Context) (outbound.AvailabilityIndex, error) {
	switch c.Config.IndexBackend {
	case BackendMemory, "":
		return index.NewRTreeIndex(), nil
	case BackendRedis:
		rdb, err := c.RedisClient(ctx)
		if err != nil {
			return nil, err
		}
		return index.NewRedisGeoIndex(rdb, c.Config.RedisGeoKey, c.Logger), nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q", c.Config.IndexBackend)
	}
}

func (c *Container) buildResolver() (*geo.Resolver, error) {
	var geocoder geo.ReverseGeocoder
	if c.Config.GoogleMapsAPIKey != "" {
		g, err := geo.NewGoogleReverseGeocoder(c.Config.GoogleMapsAPIKey)
		if err != nil {
			return nil, err
		}
		geocoder = g
	}
	locator := geo.NewIPAPILocator(c.Config.IPAPIURL, nil)
	return geo.NewResolver(locator, geocoder, c.Config.GeoResolveTimeout, c.Logger, c.Metrics), nil
}

func (c *Container) buildSink(ctx context.Context) (event.Sink, error) {
	names := c.Config.Sinks()
	if len(names) == 0 {
		names = []string{SinkLog}
	}

	sinks := make(event.MultiSink, 0, len(names))
	for _, name := range names {
		switch name {
		case SinkLog:
			sinks = append(sinks, event.NewLogSink(c.Logger))
		case SinkLocal:
			sinks = append(sinks, event.NewLocalSink(c.Events))
		case SinkAMQP:
			conn, err := c.AMQPConn()
			if err != nil {
				return nil, err
			}
			s, err := event.NewAMQPSink(conn, c.Config.EventsExchange)
			if err != nil {
				return nil, err
			}
			c.closers = append(c.closers, s.Close)
			sinks = append(sinks, s)
		case SinkNATS:
			nc, err := c.NATSConn(ctx)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, event.NewNATSSink(nc))
		default:
			return nil, fmt.Errorf("unknown event sink %q", name)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// Postgres opens the database on first use.
func (c *Container) Postgres(ctx context.Context) (*sql.DB, error) {
	if c.DB != nil {
		return c.DB, nil
	}
	db, err := sql.Open(c.Config.DBDriver, c.Config.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	return db, nil
}

// RedisClient connects to Redis on first use.
func (c *Container) RedisClient(ctx context.Context) (*redis.Client, error) {
	if c.Redis != nil {
		return c.Redis, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Config.RedisAddr(),
		Password: c.Config.RedisPassword,
		DB:       c.Config.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	c.Redis = rdb
	c.closers = append(c.closers, rdb.Close)
	return rdb, nil
}

// AMQPConn dials RabbitMQ on first use.
func (c *Container) AMQPConn() (*amqp.Connection, error) {
	if c.AMQP != nil {
		return c.AMQP, nil
	}
	conn, err := amqp.Dial(c.Config.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	c.AMQP = conn
	c.closers = append(c.closers, conn.Close)
	return conn, nil
}

// NATSConn connects to NATS on first use. The connection reconnects forever.
func (c *Container) NATSConn(ctx context.Context) (*nats.Conn, error) {
	if c.NATS != nil {
		return c.NATS, nil
	}
	nc, err := nats.Connect(c.Config.NATSURL,
		nats.Name(c.Config.ServiceName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.Logger.Warn(ctx, "nats disconnected", logger.WithError(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.Logger.Info(ctx, "nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	c.NATS = nc
	c.closers = append(c.closers, func() error {
		nc.Close()
		return nil
	})
	return nc, nil
}

// Close stops the outbox and releases connections in reverse order of
// opening. Flush the relay first to deliver pending events.
func (c *Container) Close() error {
	if c.Outbox != nil {
		c.Outbox.Close()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
