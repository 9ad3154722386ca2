package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DioGolang/GoTracker/configs"
	"github.com/DioGolang/GoTracker/internal/bootstrap"
	"github.com/DioGolang/GoTracker/internal/infra/event"
	"github.com/DioGolang/GoTracker/internal/infra/storage"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/otel"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	config, err := configs.LoadConfig(".")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(config.ServiceName+"-worker", config.LogProduction)
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.Error(ctx, "worker stopped with error", logger.WithError(err))
		logger.Sync(log)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *configs.Conf, log logger.Logger) error {
	if config.OtelCollector != "" {
		shutdown, err := otel.InitProvider(ctx, config.ServiceName+"-worker", config.Environment, config.OtelCollector)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	c, err := bootstrap.New(ctx, config, log, bootstrap.RoleWorker)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn(context.Background(), "closing resources", logger.WithError(err))
		}
	}()

	conn, err := c.AMQPConn()
	if err != nil {
		return err
	}
	rdb, err := c.RedisClient(ctx)
	if err != nil {
		return err
	}

	chain := event.BuildIngestChain(
		event.NewIngestHandler(c.Ingest, log),
		storage.NewRedisIdempotencyStore(rdb),
		event.ChainDeps{
			Logger:     log,
			Metrics:    c.Metrics,
			Timeout:    config.IngestTimeout,
			MaxRetries: config.IngestRetries,
			DedupTTL:   config.IngestDedupTTL,
		},
	)
	consumer := event.NewConsumer(conn, chain, log, config.IngestPrefetch)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Maintainer.Run(gctx)
	})
	g.Go(func() error {
		c.Relay.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "Worker started", logger.String("queue", config.IngestQueue))
		return consumer.Start(gctx, config.IngestQueue)
	})

	err = g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Relay.Flush(flushCtx)
	return err
}
