package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/internal/infra/database"
	"github.com/DioGolang/GoTracker/internal/infra/geo"
	"github.com/DioGolang/GoTracker/internal/infra/index"
	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type grpcCall struct {
	service, method, code string
}

type recordingMetrics struct {
	metrics.Metrics
	mu    sync.Mutex
	calls []grpcCall
}

func (r *recordingMetrics) ObserveGRPCRequestDuration(service, method, code string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, grpcCall{service, method, code})
}

func (r *recordingMetrics) snapshot() []grpcCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]grpcCall(nil), r.calls...)
}

type env struct {
	client  *DispatchClient
	ingest  *location.IngestUseCaseImpl
	metrics *recordingMetrics
}

func setup(t *testing.T) *env {
	t.Helper()
	log := logger.NewNop()
	m := &recordingMetrics{Metrics: metrics.NewNop()}

	store := database.NewMemoryDriverStateStore()
	idx := index.NewRTreeIndex()
	maintainer := location.NewIndexMaintainer(idx, store, log, m, location.MaintainerConfig{})
	ingest := location.NewIngestUseCase(store, geo.NewResolver(nil, nil, 0, log, m), maintainer, nopPublisher{}, m, log, location.IngestConfig{})
	svc := NewDispatchService(
		location.NewNearestUseCase(idx, store, location.DefaultNearestConfig),
		location.NewGetDriverUseCase(store),
		log,
	)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(svc, m, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Serve(ctx, srv, lis, log)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return &env{client: NewDispatchClient(conn), ingest: ingest, metrics: m}
}

func (e *env) report(t *testing.T, id string, available bool, lat, lng float64) {
	t.Helper()
	vehicle := "V-" + id
	out, err := e.ingest.Execute(context.Background(), location.IngestInput{
		DriverID:   id,
		Available:  &available,
		VehicleID:  &vehicle,
		Latitude:   &lat,
		Longitude:  &lng,
		ReportedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, location.StatusAccepted, out.Status)
}

func TestDispatch_NearestAvailable(t *testing.T) {
	// Arrange
	e := setup(t)
	e.report(t, "D1", true, 40.7128, -74.0060)
	e.report(t, "D2", true, 40.7580, -73.9855)
	e.report(t, "D3", false, 40.7130, -74.0062)

	// Act
	out, err := e.client.NearestAvailable(context.Background(), location.NearestInput{
		Latitude: 40.7128, Longitude: -74.0060, K: 5, MaxRadiusKm: 50,
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Drivers, 2)
	assert.Equal(t, "D1", out.Drivers[0].DriverID)
	assert.Equal(t, "V-D1", out.Drivers[0].VehicleID)
	assert.InDelta(t, 0, out.Drivers[0].DistanceKm, 1e-9)
	assert.Equal(t, "D2", out.Drivers[1].DriverID)
	assert.InDelta(t, 5.3, out.Drivers[1].DistanceKm, 0.1)
	assert.False(t, out.Drivers[1].LastUpdatedAt.IsZero())

	calls := e.metrics.snapshot()
	require.NotEmpty(t, calls)
	assert.Equal(t, grpcCall{DispatchServiceName, "NearestAvailable", "OK"}, calls[len(calls)-1])
}

func TestDispatch_NearestAvailableEmpty(t *testing.T) {
	e := setup(t)

	out, err := e.client.NearestAvailable(context.Background(), location.NearestInput{Latitude: 1, Longitude: 1})

	require.NoError(t, err)
	assert.Empty(t, out.Drivers)
}

func TestDispatch_InvalidArguments(t *testing.T) {
	e := setup(t)

	_, err := e.client.NearestAvailable(context.Background(), location.NearestInput{Latitude: 91, Longitude: 0})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.client.GetDriver(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDispatch_GetDriver(t *testing.T) {
	e := setup(t)
	e.report(t, "D1", true, 40.7128, -74.0060)

	out, err := e.client.GetDriver(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "D1", out.DriverID)
	assert.True(t, out.Available)
	require.NotNil(t, out.Location)
	assert.InDelta(t, 40.7128, out.Location.Latitude, 1e-9)
	assert.Equal(t, string(entity.GeoSourceGPS), out.Location.Source)

	_, err = e.client.GetDriver(context.Background(), "nobody")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDecodeNearestInput(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		want    location.NearestInput
		wantErr bool
	}{
		{
			name:   "Should read every field",
			fields: map[string]any{"latitude": 1.5, "longitude": -2.5, "k": 3, "max_radius_km": 7.5},
			want:   location.NearestInput{Latitude: 1.5, Longitude: -2.5, K: 3, MaxRadiusKm: 7.5},
		},
		{
			name:   "Should leave optional fields at zero",
			fields: map[string]any{"latitude": 0, "longitude": 0},
			want:   location.NearestInput{},
		},
		{name: "Should require the origin", fields: map[string]any{"latitude": 1}, wantErr: true},
		{name: "Should reject a string latitude", fields: map[string]any{"latitude": "1", "longitude": 1}, wantErr: true},
		{name: "Should reject a fractional k", fields: map[string]any{"latitude": 1, "longitude": 1, "k": 1.5}, wantErr: true},
		{name: "Should reject a k too large for an int", fields: map[string]any{"latitude": 1, "longitude": 1, "k": 1e300}, wantErr: true},
		{name: "Should reject a negative k", fields: map[string]any{"latitude": 1, "longitude": 1, "k": -3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			got, err := decodeNearestInput(req)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitMethod(t *testing.T) {
	svc, method := splitMethod(NearestAvailableMethod)
	assert.Equal(t, DispatchServiceName, svc)
	assert.Equal(t, "NearestAvailable", method)

	svc, method = splitMethod("bare")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "bare", method)
}

func TestUnaryTimeoutInterceptor_AddsDeadline(t *testing.T) {
	interceptor := UnaryTimeoutInterceptor(time.Second)

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
		return nil, nil
	})

	require.NoError(t, err)
}

type nopPublisher struct{}

func (nopPublisher) Admit(context.Context) error                 { return nil }
func (nopPublisher) Publish(context.Context, events.Event) error { return nil }
