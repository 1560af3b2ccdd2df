// Package objectstore keeps the remote mirror in an S3-compatible bucket.
//
// Each document is one object under {prefix}{account}/{collection}/{id}.json
// holding an envelope with the revision that wrote it. Revisions are
// microsecond timestamps made strictly increasing per Backend. A Backend
// holds an account lock across every batch, and Pull waits for it, so a
// checkpoint never passes a revision whose objects are still being written.
// The Backend must therefore be the only writer to its bucket prefix.
// Batches are applied in order but are not atomic: PutActive clears the
// tombstone before writing the document and a deletion writes the tombstone
// before removing the document, so an interrupted batch never hides a
// deletion.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

// listSkew tolerates clock drift between this process and the bucket when
// objects are pre-filtered by LastModified.
const listSkew = 10 * time.Minute

// API is the subset of *s3.Client used by the mirror.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Settings configures NewClient.
type Settings struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client for an S3-compatible endpoint with static
// credentials and path-style addressing.
func NewClient(ctx context.Context, s Settings) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

type envelope struct {
	Revision  int64           `json:"revision"`
	DeletedAt int64           `json:"deletedAt,omitempty"`
	Doc       mirror.Document `json:"doc,omitempty"`
}

// Backend hands out bucket-backed account partitions.
type Backend struct {
	api    API
	bucket string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	last  int64
	locks map[string]*sync.RWMutex
}

// Option customizes a Backend.
type Option func(*Backend)

// WithPrefix places all objects under prefix.
func WithPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// WithClock replaces the revision clock.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func NewBackend(api API, bucket string, opts ...Option) *Backend {
	b := &Backend{api: api, bucket: bucket, now: time.Now, locks: make(map[string]*sync.RWMutex)}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) ForAccount(accountID string) mirror.Mirror {
	return &Mirror{backend: b, account: accountID, lock: b.accountLock(accountID)}
}

func (b *Backend) accountLock(accountID string) *sync.RWMutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[accountID]
	if !ok {
		l = &sync.RWMutex{}
		b.locks[accountID] = l
	}
	return l
}

func (b *Backend) nextRevision() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = max(b.last+1, b.now().UnixMicro())
	return b.last
}

// Mirror is one account's partition.
type Mirror struct {
	backend *Backend
	account string
	// lock is shared by every Mirror of the same account.
	lock *sync.RWMutex
}

func (m *Mirror) key(collection, id string) string {
	return m.backend.prefix + m.account + "/" + collection + "/" + id + ".json"
}

func (m *Mirror) collectionPrefix(collection string) string {
	return m.backend.prefix + m.account + "/" + collection + "/"
}

func (m *Mirror) PushActive(ctx context.Context, kind common.Kind, doc mirror.Document) (int64, error) {
	return m.Batch(ctx, []mirror.Op{mirror.PutActive(kind, doc)})
}

func (m *Mirror) PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error) {
	return m.Batch(ctx, []mirror.Op{mirror.PutTombstone(kind, id, deletedAt)})
}

func (m *Mirror) Batch(ctx context.Context, ops []mirror.Op) (int64, error) {
	if err := mirror.ValidateOps(ops); err != nil {
		return 0, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()

	rev := m.backend.nextRevision()
	for _, op := range ops {
		if err := m.apply(ctx, rev, op); err != nil {
			return 0, mapError(err)
		}
	}
	return rev, nil
}

func (m *Mirror) apply(ctx context.Context, rev int64, op mirror.Op) error {
	switch op.Type {
	case mirror.OpPutActive:
		if err := m.remove(ctx, op.Kind.DeletedCollection(), op.ID); err != nil {
			return err
		}
		return m.put(ctx, op.Kind.ActiveCollection(), op.ID, envelope{Revision: rev, Doc: op.Doc})
	case mirror.OpPutTombstone:
		return m.put(ctx, op.Kind.DeletedCollection(), op.ID, envelope{Revision: rev, DeletedAt: timex.UnixMilli(op.DeletedAt)})
	case mirror.OpRemoveActive:
		return m.remove(ctx, op.Kind.ActiveCollection(), op.ID)
	}
	return fmt.Errorf("%w: unknown op %d", common.ErrRemoteRejected, op.Type)
}

func (m *Mirror) put(ctx context.Context, collection, id string, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteRejected, err)
	}
	_, err = m.backend.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.backend.bucket),
		Key:         aws.String(m.key(collection, id)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (m *Mirror) remove(ctx context.Context, collection, id string) error {
	_, err := m.backend.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.backend.bucket),
		Key:    aws.String(m.key(collection, id)),
	})
	return err
}

func (m *Mirror) Pull(ctx context.Context, kind common.Kind, since mirror.Checkpoint) (*mirror.Changes, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrRemoteRejected, kind)
	}
	from, err := since.Revision()
	if err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	out := &mirror.Changes{}
	top := from
	for _, collection := range []string{kind.ActiveCollection(), kind.DeletedCollection()} {
		tombstones := collection == kind.DeletedCollection()
		err := m.scan(ctx, collection, from, func(id string, env envelope) {
			top = max(top, env.Revision)
			if tombstones {
				out.Tombstones = append(out.Tombstones, mirror.Tombstone{
					ID:        id,
					DeletedAt: timex.FromUnixMilli(env.DeletedAt),
					Revision:  env.Revision,
				})
				return
			}
			out.Active = append(out.Active, mirror.Change{Revision: env.Revision, Doc: env.Doc})
		})
		if err != nil {
			return nil, mapError(err)
		}
	}

	mirror.SortChanges(out)
	out.Checkpoint = mirror.CheckpointAt(top)
	return out, nil
}

func (m *Mirror) scan(ctx context.Context, collection string, from int64, fn func(id string, env envelope)) error {
	prefix := m.collectionPrefix(collection)
	cutoff := time.UnixMicro(from).Add(-listSkew)

	p := s3.NewListObjectsV2Paginator(m.backend.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.backend.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if from > 0 && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				continue
			}
			env, ok, err := m.read(ctx, key)
			if err != nil {
				return err
			}
			if !ok || env.Revision <= from {
				continue
			}
			fn(strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json"), env)
		}
	}
	return nil
}

func (m *Mirror) read(ctx context.Context, key string) (envelope, bool, error) {
	var env envelope
	out, err := m.backend.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.backend.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return env, false, nil
		}
		return env, false, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return env, false, err
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, false, fmt.Errorf("%w: corrupt object %s: %v", common.ErrRemoteRejected, key, err)
	}
	return env, true, nil
}

var rejectedCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
	"QuotaExceeded":         true,
	"SlowDown":              true,
	"EntityTooLarge":        true,
}

// mapError folds SDK failures into the mirror error taxonomy.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, common.ErrRemoteRejected) || errors.Is(err, common.ErrNetworkUnavailable) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && rejectedCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %s", common.ErrRemoteRejected, apiErr.ErrorCode())
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("object store request failed: %w", err)
}
