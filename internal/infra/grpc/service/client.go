package service

import (
	"context"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DispatchClient calls a remote DispatchService.
type DispatchClient struct {
	cc grpc.ClientConnInterface
}

func NewDispatchClient(cc grpc.ClientConnInterface) *DispatchClient {
	return &DispatchClient{cc: cc}
}

func (c *DispatchClient) NearestAvailable(ctx context.Context, in location.NearestInput, opts ...grpc.CallOption) (location.NearestOutput, error) {
	req, err := structpb.NewStruct(map[string]any{
		"latitude":      in.Latitude,
		"longitude":     in.Longitude,
		"k":             in.K,
		"max_radius_km": in.MaxRadiusKm,
	})
	if err != nil {
		return location.NearestOutput{}, err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, NearestAvailableMethod, req, resp, opts...); err != nil {
		return location.NearestOutput{}, err
	}
	return decodeNearestOutput(resp)
}

func (c *DispatchClient) GetDriver(ctx context.Context, driverID string, opts ...grpc.CallOption) (location.DriverOutput, error) {
	req, err := structpb.NewStruct(map[string]any{"driver_id": driverID})
	if err != nil {
		return location.DriverOutput{}, err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetDriverMethod, req, resp, opts...); err != nil {
		return location.DriverOutput{}, err
	}
	return decodeDriverOutput(resp)
}
