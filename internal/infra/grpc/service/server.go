package service

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const DefaultRPCTimeout = 10 * time.Second

// NewServer builds a gRPC server with tracing, metrics and a default
// deadline, and registers the dispatch service on it.
func NewServer(svc DispatchServer, m metrics.Metrics, timeout time.Duration) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryMetricsInterceptor(m),
			UnaryTimeoutInterceptor(timeout),
		),
	)
	RegisterDispatchServer(s, svc)
	return s
}

// Serve blocks until ctx is done or the listener fails.
func Serve(ctx context.Context, s *grpc.Server, lis net.Listener, log logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "gRPC server listening", logger.String("addr", lis.Addr().String()))
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	}
}

func UnaryMetricsInterceptor(m metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		svc, method := splitMethod(info.FullMethod)
		m.ObserveGRPCRequestDuration(svc, method, status.Code(err).String(), time.Since(start).Seconds())
		return resp, err
	}
}

// UnaryTimeoutInterceptor applies timeout to calls that arrive without a deadline.
func UnaryTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return handler(ctx, req)
	}
}

func splitMethod(full string) (string, string) {
	full = strings.TrimPrefix(full, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "unknown", full
}
