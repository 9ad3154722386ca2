package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/DioGolang/GoTracker/configs"
	"github.com/DioGolang/GoTracker/internal/bootstrap"
	"github.com/DioGolang/GoTracker/internal/infra/grpc/service"
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

	log := logger.NewLogger(config.ServiceName+"-dispatch", config.LogProduction)
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.Error(ctx, "dispatch stopped with error", logger.WithError(err))
		logger.Sync(log)
		os.Exit(1)
	}
}

// run serves read-only dispatch queries. With a local index it keeps its own
// projection of the shared store; with Redis it reads the shared index.
func run(ctx context.Context, config *configs.Conf, log logger.Logger) error {
	if config.OtelCollector != "" {
		shutdown, err := otel.InitProvider(ctx, config.ServiceName+"-dispatch", config.Environment, config.OtelCollector)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	c, err := bootstrap.New(ctx, config, log, bootstrap.RoleDispatch)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn(context.Background(), "closing resources", logger.WithError(err))
		}
	}()

	lis, err := net.Listen("tcp", ":"+config.GRPCPort)
	if err != nil {
		return err
	}
	srv := service.NewServer(service.NewDispatchService(c.Nearest, c.GetDriver, log), c.Metrics, service.DefaultRPCTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Maintainer.Run(gctx)
	})
	g.Go(func() error {
		return service.Serve(gctx, srv, lis, log)
	})
	return g.Wait()
}
