package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/server/auth"
	servergrpc "github.com/dmitrijs2005/clipkeeper/internal/server/grpc"
)

const secret = "test-secret"

func startServer(t *testing.T, backend mirror.Backend) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	srv := servergrpc.NewMirrorServer("bufnet", logging.Nop(), backend, secret)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return lis
}

func newClient(t *testing.T, lis *bufconn.Listener, accountID string) *GRPCClient {
	t.Helper()
	token, err := auth.GenerateToken(accountID, []byte(secret), time.Hour)
	require.NoError(t, err)

	c, err := NewGRPCClient("passthrough:///bufnet", token, "device-1",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func clipDoc(id, text string) mirror.Document {
	return mirror.Document{
		mirror.FieldID:          id,
		mirror.FieldModifyDate:  int64(1_700_000_000_000),
		mirror.FieldSyncVersion: int64(1),
		"text":                  text,
	}
}

func TestGRPCClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := mirror.NewMemory()
	lis := startServer(t, mem)
	c := newClient(t, lis, "acc-1")

	rev, err := c.PushActive(ctx, common.KindClip, clipDoc("a", "hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "hello", mem.Active("acc-1", common.KindClip)["a"]["text"])

	at := time.UnixMilli(1_700_000_000_500).UTC()
	_, err = c.Batch(ctx, []mirror.Op{
		mirror.PutTombstone(common.KindClip, "a", at),
		mirror.RemoveActive(common.KindClip, "a"),
	})
	require.NoError(t, err)

	ch, err := c.Pull(ctx, common.KindClip, "")
	require.NoError(t, err)
	assert.Empty(t, ch.Active)
	require.Len(t, ch.Tombstones, 1)
	assert.True(t, at.Equal(ch.Tombstones[0].DeletedAt))
	assert.Equal(t, mirror.CheckpointAt(2), ch.Checkpoint)

	_, err = c.PushTombstone(ctx, common.KindFile, "f", at)
	require.NoError(t, err)
	assert.Contains(t, mem.Tombstones("acc-1", common.KindFile), "f")
}

func TestGRPCClient_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mem := mirror.NewMemory()
	lis := startServer(t, mem)

	_, err := newClient(t, lis, "acc-1").PushActive(ctx, common.KindClip, clipDoc("a", "mine"))
	require.NoError(t, err)

	ch, err := newClient(t, lis, "acc-2").Pull(ctx, common.KindClip, "")
	require.NoError(t, err)
	assert.Empty(t, ch.Active)
}

func TestGRPCClient_Errors(t *testing.T) {
	ctx := context.Background()
	lis := startServer(t, mirror.NewMemory())

	t.Run("bad token", func(t *testing.T) {
		c := newClient(t, lis, "acc")
		c.SetAccessToken("garbage")
		_, err := c.Pull(ctx, common.KindClip, "")
		assert.ErrorIs(t, err, common.ErrRemoteRejected)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})

	t.Run("rejected batch", func(t *testing.T) {
		c := newClient(t, lis, "acc")
		_, err := c.Batch(ctx, nil)
		assert.ErrorIs(t, err, common.ErrRemoteRejected)
	})

	t.Run("canceled", func(t *testing.T) {
		c := newClient(t, lis, "acc")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Pull(cctx, common.KindClip, "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMapError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, common.ErrNetworkUnavailable},
		{codes.DeadlineExceeded, common.ErrNetworkUnavailable},
		{codes.PermissionDenied, common.ErrRemoteRejected},
		{codes.ResourceExhausted, common.ErrRemoteRejected},
		{codes.Unauthenticated, common.ErrorUnauthorized},
		{codes.Aborted, common.ErrNetworkUnavailable},
		{codes.Unknown, common.ErrNetworkUnavailable},
		{codes.Canceled, common.ErrNetworkUnavailable},
		{codes.Unimplemented, common.ErrRemoteRejected},
		{codes.NotFound, common.ErrRemoteRejected},
		{codes.DataLoss, common.ErrRemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.ErrorIs(t, mapError(ctx, status.Error(tt.code, "x")), tt.want)
		})
	}

	for _, c := range []codes.Code{codes.Aborted, codes.Unknown, codes.Unimplemented, codes.OutOfRange} {
		assert.True(t, common.IsRetryable(mapError(ctx, status.Error(c, "x"))), c.String())
	}

	err := mapError(ctx, status.Error(codes.NotFound, "x"))
	assert.False(t, errors.Is(err, common.ErrNetworkUnavailable))
	assert.NoError(t, mapError(ctx, nil))

	plain := mapError(ctx, errors.New("not a status"))
	assert.ErrorIs(t, plain, common.ErrNetworkUnavailable)
}
