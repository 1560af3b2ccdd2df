package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/rpc"
	"github.com/dmitrijs2005/clipkeeper/internal/server/auth"
)

const secret = "secret"

func newTestServer() (*MirrorServer, *mirror.Memory) {
	mem := mirror.NewMemory()
	return NewMirrorServer("127.0.0.1:0", logging.Nop(), mem, secret), mem
}

func withToken(t *testing.T, accountID string, ttl time.Duration) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(accountID, []byte(secret), ttl)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, tok))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewMirrorServer("127.0.0.1:99999", logging.Nop(), mirror.NewMemory(), secret)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestInterceptor(t *testing.T) {
	srv, _ := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: rpc.MethodPull}

	t.Run("missing token", func(t *testing.T) {
		_, err := srv.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		})
		if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "missing token" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := srv.accessTokenInterceptor(withToken(t, "acc", -time.Minute), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		})
		if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != common.ErrTokenExpired.Error() {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("valid token binds account", func(t *testing.T) {
		resp, err := srv.accessTokenInterceptor(withToken(t, "acc", time.Hour), nil, info, func(ctx context.Context, req any) (any, error) {
			id, ok := accountFromContext(ctx)
			if !ok {
				t.Fatal("no account in context")
			}
			return id, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp != "acc" {
			t.Fatalf("want acc, got %v", resp)
		}
	})
}

func TestHandlers_UseCallerAccount(t *testing.T) {
	srv, mem := newTestServer()
	ctx := context.WithValue(context.Background(), accountIDKey, "acc")

	doc := mirror.Document{mirror.FieldID: "a", mirror.FieldModifyDate: int64(1), mirror.FieldSyncVersion: int64(1)}
	resp, err := srv.PushActive(ctx, &rpc.PushActiveRequest{Kind: common.KindClip, Doc: doc})
	if err != nil {
		t.Fatalf("PushActive error: %v", err)
	}
	if resp.Revision != 1 {
		t.Fatalf("want revision 1, got %d", resp.Revision)
	}
	if _, ok := mem.Active("acc", common.KindClip)["a"]; !ok {
		t.Fatal("document not stored under caller account")
	}

	_, err = srv.PushTombstone(ctx, &rpc.PushTombstoneRequest{Kind: common.KindClip, ID: "a", DeletedAt: 500})
	if err != nil {
		t.Fatalf("PushTombstone error: %v", err)
	}
	pulled, err := srv.Pull(ctx, &rpc.PullRequest{Kind: common.KindClip})
	if err != nil {
		t.Fatalf("Pull error: %v", err)
	}
	if len(pulled.Changes.Tombstones) != 1 || pulled.Changes.Tombstones[0].DeletedAt.UnixMilli() != 500 {
		t.Fatalf("unexpected tombstones: %+v", pulled.Changes.Tombstones)
	}

	_, err = srv.Batch(ctx, &rpc.BatchRequest{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("empty batch: want FailedPrecondition, got %v", err)
	}

	_, err = srv.Pull(context.Background(), &rpc.PullRequest{Kind: common.KindClip})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no account: want Unauthenticated, got %v", err)
	}
}
