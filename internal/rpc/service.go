package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "trident.v1.Servicing"

// ServicingServer is implemented by the server-side handler for the
// Install/Update/Commit/Rollback/GetStatus RPCs.
type ServicingServer interface {
	Install(context.Context, *InstallRequest) (*OperationResponse, error)
	Update(context.Context, *UpdateRequest) (*OperationResponse, error)
	Commit(context.Context, *CommitRequest) (*OperationResponse, error)
	Rollback(context.Context, *RollbackRequest) (*OperationResponse, error)
	GetStatus(*GetStatusRequest, ServicingGetStatusServer) error
}

// ServicingGetStatusServer is the server-side handle for the GetStatus
// server-streaming call.
type ServicingGetStatusServer interface {
	Send(*StatusUpdate) error
	grpc.ServerStream
}

type servicingGetStatusServer struct {
	grpc.ServerStream
}

func (x *servicingGetStatusServer) Send(m *StatusUpdate) error {
	return x.ServerStream.SendMsg(m)
}

func unaryHandler[Req any](
	srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor,
	fullMethod string, call func(ServicingServer, context.Context, *Req) (*OperationResponse, error),
) (any, error) {
	in := new(Req)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(srv.(ServicingServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(srv.(ServicingServer), ctx, req.(*Req))
	}
	return interceptor(ctx, in, info, handler)
}

func installHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unaryHandler[InstallRequest](srv, ctx, dec, interceptor, "/"+serviceName+"/Install",
		func(s ServicingServer, ctx context.Context, req *InstallRequest) (*OperationResponse, error) {
			return s.Install(ctx, req)
		})
}

func updateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unaryHandler[UpdateRequest](srv, ctx, dec, interceptor, "/"+serviceName+"/Update",
		func(s ServicingServer, ctx context.Context, req *UpdateRequest) (*OperationResponse, error) {
			return s.Update(ctx, req)
		})
}

func commitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unaryHandler[CommitRequest](srv, ctx, dec, interceptor, "/"+serviceName+"/Commit",
		func(s ServicingServer, ctx context.Context, req *CommitRequest) (*OperationResponse, error) {
			return s.Commit(ctx, req)
		})
}

func rollbackHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unaryHandler[RollbackRequest](srv, ctx, dec, interceptor, "/"+serviceName+"/Rollback",
		func(s ServicingServer, ctx context.Context, req *RollbackRequest) (*OperationResponse, error) {
			return s.Rollback(ctx, req)
		})
}

func getStatusHandler(srv any, stream grpc.ServerStream) error {
	m := new(GetStatusRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ServicingServer).GetStatus(m, &servicingGetStatusServer{stream})
}

// ServiceDesc is the hand-written grpc.ServiceDesc for the Servicing
// service, playing the role a protoc-generated _grpc.pb.go would.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ServicingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Install", Handler: installHandler},
		{MethodName: "Update", Handler: updateHandler},
		{MethodName: "Commit", Handler: commitHandler},
		{MethodName: "Rollback", Handler: rollbackHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetStatus", Handler: getStatusHandler, ServerStreams: true},
	},
	Metadata: "trident/servicing.proto",
}

// RegisterServicingServer registers srv on s, mirroring the call a
// generated RegisterServicingServer would make.
func RegisterServicingServer(s grpc.ServiceRegistrar, srv ServicingServer) {
	s.RegisterService(&ServiceDesc, srv)
}
