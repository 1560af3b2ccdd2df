// Package store is the local Entity Store: versioned, soft-deletable clips,
// files and filters kept in SQLite.
//
// Every write carries the version the caller last saw. A write whose
// expected version no longer matches fails with common.ErrVersionConflict
// and changes nothing. Local writes mark the entity pending; writes that
// apply a mirror change (see FromRemote) clear the flag instead.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/client/repositories/entities"
	"github.com/dmitrijs2005/clipkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/dbx"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	deviceIDKey      = "device_id"
	checkpointPrefix = "checkpoint:"
)

// Store is the Entity Store. A Store returned by WithTx is bound to the
// transaction and must not be used after the callback returns.
type Store struct {
	db       *sql.DB
	entities entities.Repository
	meta     metadata.Repository
	deviceID string
	now      func() time.Time
	newID    func() string
	logger   logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDeviceID fixes the id stamped on local writes.
func WithDeviceID(id string) Option {
	return func(s *Store) { s.deviceID = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces uuid generation for new entities.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if needed) the SQLite database at dsn, applies
// migrations and returns a Store. Without WithDeviceID the device id is
// loaded from the database or generated once and persisted.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	// Writes are serialized through a single connection.
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db, opts...)
	if err := s.ensureDeviceID(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.entities = entities.NewSQLiteRepository(db)
	s.meta = metadata.NewSQLiteRepository(db)
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DeviceID returns the id stamped on local writes.
func (s *Store) DeviceID() string { return s.deviceID }

// WithTx runs fn with a Store bound to one transaction. Nested calls reuse
// the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, conn dbx.DBTX) error {
		bound := *s
		bound.db = nil
		bound.entities = entities.NewSQLiteRepository(conn)
		bound.meta = metadata.NewSQLiteRepository(conn)
		return fn(ctx, &bound)
	})
}

func (s *Store) ensureDeviceID(ctx context.Context) error {
	if s.deviceID != "" {
		return nil
	}
	id, ok, err := s.meta.Get(ctx, deviceIDKey)
	if err != nil {
		return err
	}
	if !ok {
		id = uuid.NewString()
		if err := s.meta.Set(ctx, deviceIDKey, id); err != nil {
			return err
		}
	}
	s.deviceID = id
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Get returns an active entity or common.ErrorNotFound.
func (s *Store) Get(ctx context.Context, kind common.Kind, id string) (models.Entity, error) {
	e, err := s.GetAny(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if e.GetMeta().Deleted {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

// GetAny returns an entity whether it is active or tombstoned.
func (s *Store) GetAny(ctx context.Context, kind common.Kind, id string) (models.Entity, error) {
	rec, err := s.entities.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return models.Decode(rec)
}

// ListActive returns the active entities of kind ordered by id.
func (s *Store) ListActive(ctx context.Context, kind common.Kind) ([]models.Entity, error) {
	return s.list(ctx, kind, entities.ScopeActive)
}

// ListTombstones returns the tombstoned entities of kind ordered by id.
func (s *Store) ListTombstones(ctx context.Context, kind common.Kind) ([]models.Entity, error) {
	return s.list(ctx, kind, entities.ScopeTombstones)
}

// ListPending returns entities of kind, active or tombstoned, that carry
// unacknowledged local changes.
func (s *Store) ListPending(ctx context.Context, kind common.Kind) ([]models.Entity, error) {
	return s.list(ctx, kind, entities.ScopePending)
}

func (s *Store) list(ctx context.Context, kind common.Kind, scope entities.Scope) ([]models.Entity, error) {
	recs, err := s.entities.List(ctx, kind, scope)
	if err != nil {
		return nil, err
	}
	out := make([]models.Entity, 0, len(recs))
	for _, rec := range recs {
		e, err := models.Decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// PendingCount returns the number of pending entities of every kind.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.entities.CountPending(ctx)
}

// FindTagByName returns the active TAG filter whose name equals name
// exactly, or common.ErrorNotFound.
func (s *Store) FindTagByName(ctx context.Context, name string) (*models.Filter, error) {
	rec, err := s.entities.FindByName(ctx, int(models.FilterTag), name)
	if err != nil {
		return nil, err
	}
	e, err := models.Decode(rec)
	if err != nil {
		return nil, err
	}
	return e.(*models.Filter), nil
}

// MarkSynced records that the mirror acknowledged pushedVersion of an
// entity at revision. The pending flag is cleared only if the entity was
// not modified again since the push.
func (s *Store) MarkSynced(ctx context.Context, kind common.Kind, id string, pushedVersion, revision int64) error {
	return s.entities.MarkSynced(ctx, kind, id, pushedVersion, revision)
}

// Checkpoint returns the stored mirror checkpoint for kind ("" if none).
func (s *Store) Checkpoint(ctx context.Context, kind common.Kind) (string, error) {
	v, _, err := s.meta.Get(ctx, checkpointPrefix+string(kind))
	return v, err
}

// SetCheckpoint stores the mirror checkpoint for kind.
func (s *Store) SetCheckpoint(ctx context.Context, kind common.Kind, token string) error {
	return s.meta.Set(ctx, checkpointPrefix+string(kind), token)
}

// Checkpoints returns every stored checkpoint keyed by kind.
func (s *Store) Checkpoints(ctx context.Context) (map[common.Kind]string, error) {
	raw, err := s.meta.List(ctx, checkpointPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[common.Kind]string, len(raw))
	for k, v := range raw {
		out[common.Kind(k[len(checkpointPrefix):])] = v
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}
