package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/rpc"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

type GRPCClient struct {
	endpointURL string
	deviceID    string
	conn        *grpc.ClientConn
	client      *rpc.MirrorClient

	mu          sync.RWMutex
	accessToken string
}

var _ mirror.Mirror = (*GRPCClient)(nil)

func withHeaders(ctx context.Context, token, deviceID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	if deviceID != "" {
		md.Set(common.DeviceHeaderName, deviceID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()

	return invoker(withHeaders(ctx, token, s.deviceID), method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a connection to endpointURL. The connection is
// established lazily by the first call. Extra dial options are appended
// after the defaults (plaintext transport and the token interceptor).
func NewGRPCClient(endpointURL, accessToken, deviceID string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, deviceID: deviceID}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", endpointURL, err)
	}
	c.conn = conn
	c.client = rpc.NewMirrorClient(conn)
	return c, nil
}

// SetAccessToken replaces the token used by subsequent calls.
func (s *GRPCClient) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) PushActive(ctx context.Context, kind common.Kind, doc mirror.Document) (int64, error) {
	resp, err := s.client.PushActive(ctx, &rpc.PushActiveRequest{Kind: kind, Doc: doc})
	if err != nil {
		return 0, mapError(ctx, err)
	}
	return resp.Revision, nil
}

func (s *GRPCClient) PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error) {
	resp, err := s.client.PushTombstone(ctx, &rpc.PushTombstoneRequest{Kind: kind, ID: id, DeletedAt: timex.UnixMilli(deletedAt)})
	if err != nil {
		return 0, mapError(ctx, err)
	}
	return resp.Revision, nil
}

func (s *GRPCClient) Pull(ctx context.Context, kind common.Kind, since mirror.Checkpoint) (*mirror.Changes, error) {
	resp, err := s.client.Pull(ctx, &rpc.PullRequest{Kind: kind, Since: since})
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return &resp.Changes, nil
}

func (s *GRPCClient) Batch(ctx context.Context, ops []mirror.Op) (int64, error) {
	resp, err := s.client.Batch(ctx, &rpc.BatchRequest{Ops: ops})
	if err != nil {
		return 0, mapError(ctx, err)
	}
	return resp.Revision, nil
}

func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	// Every status lands in the mirror taxonomy: transport and transient
	// server states are NetworkUnavailable, the rest are rejections.
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Unknown, codes.Canceled:
		return fmt.Errorf("%w: %s: %s", common.ErrNetworkUnavailable, st.Code(), st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %w: %s", common.ErrRemoteRejected, common.ErrorUnauthorized, st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", common.ErrRemoteRejected, st.Code(), st.Message())
	}
}
