package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DioGolang/GoTracker/configs"
	"github.com/DioGolang/GoTracker/internal/bootstrap"
	"github.com/DioGolang/GoTracker/internal/infra/web"
	"github.com/DioGolang/GoTracker/internal/infra/web/handler"
	"github.com/DioGolang/GoTracker/internal/infra/web/middleware"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/otel"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	config, err := configs.LoadConfig(".")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(config.ServiceName+"-api", config.LogProduction)
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.Error(ctx, "api stopped with error", logger.WithError(err))
		logger.Sync(log)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *configs.Conf, log logger.Logger) error {
	if config.OtelCollector != "" {
		shutdown, err := otel.InitProvider(ctx, config.ServiceName+"-api", config.Environment, config.OtelCollector)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	c, err := bootstrap.New(ctx, config, log, bootstrap.RoleAPI)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn(context.Background(), "closing resources", logger.WithError(err))
		}
	}()

	limiter := middleware.NewRateLimiter(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: config.RateLimitRPS,
		Burst:             config.RateLimitBurst,
	})
	health := handler.NewHealthHandler(config.ServiceName,
		handler.WithPostgres(c.DB),
		handler.WithRedis(c.Redis),
		handler.WithNATS(c.NATS),
		handler.WithCheck("outbox", true, func(context.Context) error {
			if n := c.Outbox.Len(); n >= config.OutboxCapacity {
				return errors.New("outbox is full")
			}
			return nil
		}),
	)
	router := web.NewRouter(web.RouterDeps{
		ServiceName: config.ServiceName,
		Logger:      log,
		Metrics:     c.Metrics,
		Gatherer:    c.Registry,
		Location:    handler.NewLocationHandler(c.Ingest, c.Nearest, c.GetDriver, c.Maintainer, log),
		Health:      health,
		RateLimiter: limiter,
	})
	server := &http.Server{
		Addr:              ":" + config.WebServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Maintainer.Run(gctx)
	})
	g.Go(func() error {
		c.Relay.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "Server running", logger.String("port", config.WebServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		c.Relay.Flush(shutdownCtx)
		return err
	})

	return g.Wait()
}
