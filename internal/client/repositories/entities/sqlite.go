package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/dbx"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

const columns = `kind, id, version, remote_version, pending, deleted, deleted_at,
	create_date, modify_date, device_id, name, filter_type, parent_id, payload`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, kind common.Kind, id string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO entities (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO NOTHING`

	n, err := dbx.Exec(ctx, r.db, query,
		string(rec.Kind), rec.ID, rec.Version, rec.RemoteVersion, rec.Pending, rec.Deleted, deletedAt(rec),
		timex.UnixMilli(rec.CreateDate), timex.UnixMilli(rec.ModifyDate), rec.DeviceID,
		rec.Name, rec.FilterType, rec.ParentID, rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", rec.Kind, rec.ID, err)
	}
	if n == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec *models.Record, expectedVersion int64) error {
	query := `UPDATE entities SET version = ?, remote_version = ?, pending = ?, deleted = ?, deleted_at = ?,
			create_date = ?, modify_date = ?, device_id = ?, name = ?, filter_type = ?, parent_id = ?, payload = ?
		WHERE kind = ? AND id = ? AND version = ?`

	n, err := dbx.Exec(ctx, r.db, query,
		rec.Version, rec.RemoteVersion, rec.Pending, rec.Deleted, deletedAt(rec),
		timex.UnixMilli(rec.CreateDate), timex.UnixMilli(rec.ModifyDate), rec.DeviceID,
		rec.Name, rec.FilterType, rec.ParentID, rec.Payload,
		string(rec.Kind), rec.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", rec.Kind, rec.ID, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.Get(ctx, rec.Kind, rec.ID); err != nil {
		return err
	}
	return common.ErrVersionConflict
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, kind common.Kind, id string, pushedVersion, revision int64) error {
	query := `UPDATE entities
		SET pending = CASE WHEN version = ? THEN 0 ELSE pending END,
			remote_version = MAX(remote_version, ?)
		WHERE kind = ? AND id = ?`

	n, err := dbx.Exec(ctx, r.db, query, pushedVersion, revision, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", kind, id, err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, kind common.Kind, scope Scope) ([]*models.Record, error) {
	var where string
	switch scope {
	case ScopeActive:
		where = "deleted = 0"
	case ScopeTombstones:
		where = "deleted = 1"
	case ScopePending:
		where = "pending = 1"
	default:
		return nil, fmt.Errorf("unknown scope %d", scope)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM entities WHERE kind = ? AND `+where+` ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", kind, err)
	}
	return result, nil
}

func (r *SQLiteRepository) FindByName(ctx context.Context, filterType int, name string) (*models.Record, error) {
	query := `SELECT ` + columns + ` FROM entities
		WHERE kind = ? AND filter_type = ? AND name = ? AND deleted = 0
		ORDER BY create_date, id LIMIT 1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, string(common.KindFilter), filterType, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find filter %q: %w", name, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE pending = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec      models.Record
		kind     string
		delMs    sql.NullInt64
		createMs int64
		modifyMs int64
	)
	err := s.Scan(&kind, &rec.ID, &rec.Version, &rec.RemoteVersion, &rec.Pending, &rec.Deleted, &delMs,
		&createMs, &modifyMs, &rec.DeviceID, &rec.Name, &rec.FilterType, &rec.ParentID, &rec.Payload)
	if err != nil {
		return nil, err
	}
	rec.Kind = common.Kind(kind)
	rec.CreateDate = timex.FromUnixMilli(createMs)
	rec.ModifyDate = timex.FromUnixMilli(modifyMs)
	if delMs.Valid {
		t := timex.FromUnixMilli(delMs.Int64)
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func deletedAt(rec *models.Record) any {
	if rec.DeletedAt == nil {
		return nil
	}
	return timex.UnixMilli(*rec.DeletedAt)
}
