package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	// Retries is the number of extra attempts after the first one.
	Retries uint64
	// Base is the first backoff delay; it doubles on every attempt.
	Base time.Duration
}

// WithRetry re-issues calls on m that fail with
// common.ErrNetworkUnavailable. Rejections are returned at once and left to
// the next sync pass.
func WithRetry(m Mirror, p RetryPolicy) Mirror {
	if p.Retries == 0 {
		return m
	}
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}
	return &retryMirror{next: m, policy: p}
}

type retryMirror struct {
	next   Mirror
	policy RetryPolicy
}

func retryValue[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	b := retry.WithMaxRetries(p.Retries, retry.NewExponential(p.Base))
	return retry.DoValue(ctx, b, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if errors.Is(err, common.ErrNetworkUnavailable) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}

func (r *retryMirror) PushActive(ctx context.Context, kind common.Kind, doc Document) (int64, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (int64, error) {
		return r.next.PushActive(ctx, kind, doc)
	})
}

func (r *retryMirror) PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (int64, error) {
		return r.next.PushTombstone(ctx, kind, id, deletedAt)
	})
}

func (r *retryMirror) Pull(ctx context.Context, kind common.Kind, since Checkpoint) (*Changes, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*Changes, error) {
		return r.next.Pull(ctx, kind, since)
	})
}

func (r *retryMirror) Batch(ctx context.Context, ops []Op) (int64, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (int64, error) {
		return r.next.Batch(ctx, ops)
	})
}
