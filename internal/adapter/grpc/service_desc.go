package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "wealthflow.performance.v1.PerformanceService"

// Full method names
const (
	MethodRunCalculation = "/" + ServiceName + "/RunCalculation"
	MethodCancelRun      = "/" + ServiceName + "/CancelRun"
	MethodBuildTable     = "/" + ServiceName + "/BuildTable"
	MethodLatestRun      = "/" + ServiceName + "/LatestRun"
)

// PerformanceServiceServer is the server API for PerformanceService.
// Messages are google.protobuf.Struct documents; field names are listed in messages.go.
type PerformanceServiceServer interface {
	RunCalculation(req *structpb.Struct, stream grpc.ServerStream) error
	CancelRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BuildTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	LatestRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPerformanceServiceServer registers srv on the gRPC server
func RegisterPerformanceServiceServer(s grpc.ServiceRegistrar, srv PerformanceServiceServer) {
	s.RegisterService(&PerformanceServiceDesc, srv)
}

// PerformanceServiceDesc is the grpc.ServiceDesc for PerformanceService
var PerformanceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PerformanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CancelRun", Handler: unaryHandler(MethodCancelRun, PerformanceServiceServer.CancelRun)},
		{MethodName: "BuildTable", Handler: unaryHandler(MethodBuildTable, PerformanceServiceServer.BuildTable)},
		{MethodName: "LatestRun", Handler: unaryHandler(MethodLatestRun, PerformanceServiceServer.LatestRun)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RunCalculation",
			Handler:       runCalculationHandler,
			ServerStreams: true,
		},
	},
	Metadata: "wealthflow/performance/v1/performance.proto",
}

type unaryMethod func(PerformanceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PerformanceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PerformanceServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func runCalculationHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PerformanceServiceServer).RunCalculation(in, stream)
}
