package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServicingClient is the client-side handle for the Servicing service,
// playing the role a generated ServicingClient interface would.
type ServicingClient interface {
	Install(ctx context.Context, in *InstallRequest, opts ...grpc.CallOption) (*OperationResponse, error)
	Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*OperationResponse, error)
	Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*OperationResponse, error)
	Rollback(ctx context.Context, in *RollbackRequest, opts ...grpc.CallOption) (*OperationResponse, error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (ServicingGetStatusClient, error)
}

// ServicingGetStatusClient is the client-side handle for the GetStatus
// server-streaming call.
type ServicingGetStatusClient interface {
	Recv() (*StatusUpdate, error)
	grpc.ClientStream
}

type servicingClient struct {
	cc grpc.ClientConnInterface
}

// NewServicingClient builds a client bound to cc. Callers must dial cc with
// grpc.CallContentSubtype(codecName) (or WithDefaultCallOptions to the same
// effect) so requests and responses are carried in the codec registered by
// this package.
func NewServicingClient(cc grpc.ClientConnInterface) ServicingClient {
	return &servicingClient{cc: cc}
}

func (c *servicingClient) Install(ctx context.Context, in *InstallRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	out := new(OperationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Install", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *servicingClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	out := new(OperationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Update", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *servicingClient) Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	out := new(OperationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Commit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *servicingClient) Rollback(ctx context.Context, in *RollbackRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	out := new(OperationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Rollback", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *servicingClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (ServicingGetStatusClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/GetStatus", opts...)
	if err != nil {
		return nil, err
	}
	x := &servicingGetStatusClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type servicingGetStatusClient struct {
	grpc.ClientStream
}

func (x *servicingGetStatusClient) Recv() (*StatusUpdate, error) {
	m := new(StatusUpdate)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
