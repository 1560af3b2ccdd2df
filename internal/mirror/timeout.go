package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// WithTimeout bounds every call on m by d. A call cut short by that bound,
// while the caller's own context is still live, fails with
// common.ErrNetworkUnavailable. d <= 0 disables the bound.
func WithTimeout(m Mirror, d time.Duration) Mirror {
	if d <= 0 {
		return m
	}
	return &timeoutMirror{next: m, timeout: d}
}

type timeoutMirror struct {
	next    Mirror
	timeout time.Duration
}

func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w: no response within %s", common.ErrNetworkUnavailable, d)
	}
	return v, err
}

func (t *timeoutMirror) PushActive(ctx context.Context, kind common.Kind, doc Document) (int64, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (int64, error) {
		return t.next.PushActive(ctx, kind, doc)
	})
}

func (t *timeoutMirror) PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (int64, error) {
		return t.next.PushTombstone(ctx, kind, id, deletedAt)
	})
}

func (t *timeoutMirror) Pull(ctx context.Context, kind common.Kind, since Checkpoint) (*Changes, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (*Changes, error) {
		return t.next.Pull(ctx, kind, since)
	})
}

func (t *timeoutMirror) Batch(ctx context.Context, ops []Op) (int64, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (int64, error) {
		return t.next.Batch(ctx, ops)
	})
}
