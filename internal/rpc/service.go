package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "clipkeeper.mirror.Mirror"

const (
	MethodPushActive    = "/" + ServiceName + "/PushActive"
	MethodPushTombstone = "/" + ServiceName + "/PushTombstone"
	MethodPull          = "/" + ServiceName + "/Pull"
	MethodBatch         = "/" + ServiceName + "/Batch"
)

// MirrorServer is implemented by the mirror service.
type MirrorServer interface {
	PushActive(context.Context, *PushActiveRequest) (*RevisionResponse, error)
	PushTombstone(context.Context, *PushTombstoneRequest) (*RevisionResponse, error)
	Pull(context.Context, *PullRequest) (*PullResponse, error)
	Batch(context.Context, *BatchRequest) (*RevisionResponse, error)
}

// ServiceDesc describes the mirror service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MirrorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushActive", Handler: unaryHandler(MethodPushActive, MirrorServer.PushActive)},
		{MethodName: "PushTombstone", Handler: unaryHandler(MethodPushTombstone, MirrorServer.PushTombstone)},
		{MethodName: "Pull", Handler: unaryHandler(MethodPull, MirrorServer.Pull)},
		{MethodName: "Batch", Handler: unaryHandler(MethodBatch, MirrorServer.Batch)},
	},
	Metadata: "clipkeeper/mirror",
}

// RegisterMirrorServer registers srv on s.
func RegisterMirrorServer(s grpc.ServiceRegistrar, srv MirrorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServerOptions returns the options a grpc.Server needs to speak this
// protocol.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}

func unaryHandler[Req, Resp any](fullMethod string, call func(MirrorServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MirrorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MirrorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MirrorClient is the client side of the mirror service.
type MirrorClient struct {
	cc grpc.ClientConnInterface
}

func NewMirrorClient(cc grpc.ClientConnInterface) *MirrorClient {
	return &MirrorClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MirrorClient) PushActive(ctx context.Context, in *PushActiveRequest, opts ...grpc.CallOption) (*RevisionResponse, error) {
	return invoke[RevisionResponse](ctx, c.cc, MethodPushActive, in, opts)
}

func (c *MirrorClient) PushTombstone(ctx context.Context, in *PushTombstoneRequest, opts ...grpc.CallOption) (*RevisionResponse, error) {
	return invoke[RevisionResponse](ctx, c.cc, MethodPushTombstone, in, opts)
}

func (c *MirrorClient) Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullResponse, error) {
	return invoke[PullResponse](ctx, c.cc, MethodPull, in, opts)
}

func (c *MirrorClient) Batch(ctx context.Context, in *BatchRequest, opts ...grpc.CallOption) (*RevisionResponse, error) {
	return invoke[RevisionResponse](ctx, c.cc, MethodBatch, in, opts)
}
