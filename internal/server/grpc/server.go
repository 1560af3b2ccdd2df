// Package grpc serves the mirror protocol to devices. Every call is bound
// to the account named by the caller's access token.
package grpc

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/rpc"
)

type MirrorServer struct {
	address   string
	backend   mirror.Backend
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.MirrorServer = (*MirrorServer)(nil)

func NewMirrorServer(address string, l logging.Logger, backend mirror.Backend, secretKey string) *MirrorServer {
	return &MirrorServer{
		address:   address,
		backend:   backend,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
	}
}

func (s *MirrorServer) newGRPCServer() *grpc.Server {
	opts := append(rpc.ServerOptions(), grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	rpc.RegisterMirrorServer(srv, s)
	return srv
}

// Run listens on the configured address until ctx is done.
func (s *MirrorServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *MirrorServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
