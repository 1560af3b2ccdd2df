package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/rpc"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

func (s *MirrorServer) mirrorFor(ctx context.Context) (mirror.Mirror, error) {
	accountID, ok := accountFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no account")
	}
	return s.backend.ForAccount(accountID), nil
}

func (s *MirrorServer) PushActive(ctx context.Context, req *rpc.PushActiveRequest) (*rpc.RevisionResponse, error) {
	m, err := s.mirrorFor(ctx)
	if err != nil {
		return nil, err
	}
	rev, err := m.PushActive(ctx, req.Kind, req.Doc)
	if err != nil {
		return nil, s.toStatus(ctx, "push active", err)
	}
	return &rpc.RevisionResponse{Revision: rev}, nil
}

func (s *MirrorServer) PushTombstone(ctx context.Context, req *rpc.PushTombstoneRequest) (*rpc.RevisionResponse, error) {
	m, err := s.mirrorFor(ctx)
	if err != nil {
		return nil, err
	}
	rev, err := m.PushTombstone(ctx, req.Kind, req.ID, timex.FromUnixMilli(req.DeletedAt))
	if err != nil {
		return nil, s.toStatus(ctx, "push tombstone", err)
	}
	return &rpc.RevisionResponse{Revision: rev}, nil
}

func (s *MirrorServer) Pull(ctx context.Context, req *rpc.PullRequest) (*rpc.PullResponse, error) {
	m, err := s.mirrorFor(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := m.Pull(ctx, req.Kind, req.Since)
	if err != nil {
		return nil, s.toStatus(ctx, "pull", err)
	}
	return &rpc.PullResponse{Changes: *changes}, nil
}

func (s *MirrorServer) Batch(ctx context.Context, req *rpc.BatchRequest) (*rpc.RevisionResponse, error) {
	m, err := s.mirrorFor(ctx)
	if err != nil {
		return nil, err
	}
	rev, err := m.Batch(ctx, req.Ops)
	if err != nil {
		return nil, s.toStatus(ctx, "batch", err)
	}
	return &rpc.RevisionResponse{Revision: rev}, nil
}

// toStatus maps backend errors to gRPC status codes.
func (s *MirrorServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrRemoteRejected):
		s.logger.Warn(ctx, "request rejected", "op", op, "error", err)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrNetworkUnavailable):
		s.logger.Warn(ctx, "backend unavailable", "op", op, "error", err)
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "op", op, "error", err)
	return status.Error(codes.Internal, "internal error")
}
