package service

import (
	"context"
	"errors"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	DispatchServiceName    = "gotracker.v1.DispatchService"
	NearestAvailableMethod = "/" + DispatchServiceName + "/NearestAvailable"
	GetDriverMethod        = "/" + DispatchServiceName + "/GetDriver"
)

// DispatchServer answers dispatch queries for other services.
type DispatchServer interface {
	NearestAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDriver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// DispatchServiceDesc is registered by hand; requests and responses are
// google.protobuf.Struct values so no generated code is needed.
var DispatchServiceDesc = grpc.ServiceDesc{
	ServiceName: DispatchServiceName,
	HandlerType: (*DispatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NearestAvailable", Handler: nearestAvailableHandler},
		{MethodName: "GetDriver", Handler: getDriverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gotracker/v1/dispatch.proto",
}

func RegisterDispatchServer(s grpc.ServiceRegistrar, srv DispatchServer) {
	s.RegisterService(&DispatchServiceDesc, srv)
}

func nearestAvailableHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).NearestAvailable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NearestAvailableMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DispatchServer).NearestAvailable(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getDriverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).GetDriver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetDriverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DispatchServer).GetDriver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type DispatchService struct {
	NearestUseCase   location.NearestUseCase
	GetDriverUseCase location.GetDriverUseCase
	Logger           logger.Logger
}

func NewDispatchService(nearest location.NearestUseCase, getDriver location.GetDriverUseCase, log logger.Logger) *DispatchService {
	return &DispatchService{NearestUseCase: nearest, GetDriverUseCase: getDriver, Logger: log}
}

func (s *DispatchService) NearestAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input, err := decodeNearestInput(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out, err := s.NearestUseCase.Execute(ctx, input)
	if err != nil {
		return nil, s.toStatus(ctx, "nearest query failed", err)
	}
	resp, err := encodeNearestOutput(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *DispatchService) GetDriver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.GetDriverUseCase.Execute(ctx, location.GetDriverInput{
		DriverID: req.GetFields()["driver_id"].GetStringValue(),
	})
	if err != nil {
		return nil, s.toStatus(ctx, "driver lookup failed", err)
	}
	resp, err := encodeDriverOutput(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *DispatchService) toStatus(ctx context.Context, msg string, err error) error {
	switch {
	case entity.IsRejection(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, entity.ErrDriverNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.Logger.Error(ctx, msg, logger.WithError(err))
		return status.Error(codes.Internal, "internal error")
	}
}

var _ DispatchServer = (*DispatchService)(nil)
