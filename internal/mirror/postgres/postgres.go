// Package postgres stores the remote mirror in PostgreSQL.
//
// Every account owns a row in mirror_accounts whose revision column is
// bumped once per batch. The row lock taken by that bump serializes an
// account's writers, so revisions become visible to readers in order and
// a pulled checkpoint never skips a write that commits later.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/dbx"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Backend hands out Postgres-backed account partitions.
type Backend struct {
	db *sql.DB
}

// Open connects with the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

func NewBackend(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// RunMigrations applies the embedded schema.
func (b *Backend) RunMigrations(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, b.db, "migrations")
}

func (b *Backend) ForAccount(accountID string) mirror.Mirror {
	return &Mirror{db: b.db, account: accountID}
}

// Mirror is one account's partition.
type Mirror struct {
	db      *sql.DB
	account string
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

	var rev int64
	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, nextRevisionSQL, m.account).Scan(&rev); err != nil {
			return err
		}
		for _, op := range ops {
			if err := m.apply(ctx, tx, rev, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return rev, nil
}

const nextRevisionSQL = `INSERT INTO mirror_accounts (account_id, revision) VALUES ($1, 1)
	ON CONFLICT (account_id) DO UPDATE SET revision = mirror_accounts.revision + 1
	RETURNING revision`

const upsertSQL = `INSERT INTO mirror_documents (account_id, collection, id, revision, deleted_at, body)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (account_id, collection, id) DO UPDATE
	SET revision = EXCLUDED.revision, deleted_at = EXCLUDED.deleted_at, body = EXCLUDED.body`

const removeSQL = `DELETE FROM mirror_documents WHERE account_id = $1 AND collection = $2 AND id = $3`

func (m *Mirror) apply(ctx context.Context, tx dbx.DBTX, rev int64, op mirror.Op) error {
	switch op.Type {
	case mirror.OpPutActive:
		body, err := json.Marshal(op.Doc)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrRemoteRejected, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, m.account, op.Kind.ActiveCollection(), op.ID, rev, nil, body); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, removeSQL, m.account, op.Kind.DeletedCollection(), op.ID)
		return err
	case mirror.OpPutTombstone:
		_, err := tx.ExecContext(ctx, upsertSQL, m.account, op.Kind.DeletedCollection(), op.ID, rev, timex.UnixMilli(op.DeletedAt), nil)
		return err
	case mirror.OpRemoveActive:
		_, err := tx.ExecContext(ctx, removeSQL, m.account, op.Kind.ActiveCollection(), op.ID)
		return err
	}
	return fmt.Errorf("%w: unknown op %d", common.ErrRemoteRejected, op.Type)
}

const pullSQL = `SELECT collection, id, revision, deleted_at, body FROM mirror_documents
	WHERE account_id = $1 AND collection IN ($2, $3) AND revision > $4
	ORDER BY revision, id`

func (m *Mirror) Pull(ctx context.Context, kind common.Kind, since mirror.Checkpoint) (*mirror.Changes, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrRemoteRejected, kind)
	}
	from, err := since.Revision()
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, pullSQL, m.account, kind.ActiveCollection(), kind.DeletedCollection(), from)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := &mirror.Changes{}
	top := from
	for rows.Next() {
		var (
			collection, id string
			rev            int64
			deletedAt      sql.NullInt64
			body           []byte
		)
		if err := rows.Scan(&collection, &id, &rev, &deletedAt, &body); err != nil {
			return nil, mapError(err)
		}
		top = max(top, rev)

		if collection == kind.DeletedCollection() {
			out.Tombstones = append(out.Tombstones, mirror.Tombstone{
				ID:        id,
				DeletedAt: timex.FromUnixMilli(deletedAt.Int64),
				Revision:  rev,
			})
			continue
		}
		var doc mirror.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("%w: corrupt document %s: %v", common.ErrRemoteRejected, id, err)
		}
		out.Active = append(out.Active, mirror.Change{Revision: rev, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	out.Checkpoint = mirror.CheckpointAt(top)
	return out, nil
}

// mapError folds driver failures into the mirror error taxonomy.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, common.ErrRemoteRejected) || errors.Is(err, common.ErrNetworkUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501", strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "54"):
			return fmt.Errorf("%w: %s", common.ErrRemoteRejected, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %s", common.ErrNetworkUnavailable, pgErr.Message)
		}
		return fmt.Errorf("mirror query failed: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("mirror query failed: %w", err)
}
