package entities

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(context.Background(), db))
	return db
}

func record(kind common.Kind, id string, version int64) *models.Record {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.Record{
		Kind:       kind,
		ID:         id,
		Version:    version,
		Pending:    true,
		CreateDate: now,
		ModifyDate: now,
		DeviceID:   "dev-1",
		Payload:    []byte(`{"text":"x"}`),
	}
}

func TestInsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	in := record(common.KindClip, "c1", 1)
	require.NoError(t, r.Insert(ctx, in))

	got, err := r.Get(ctx, common.KindClip, "c1")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestInsert_DuplicateIsConflict(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, record(common.KindClip, "c1", 1)))
	require.ErrorIs(t, r.Insert(ctx, record(common.KindClip, "c1", 1)), common.ErrVersionConflict)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), common.KindClip, "absent")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_VersionDiscipline(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, record(common.KindClip, "c1", 1)))

	next := record(common.KindClip, "c1", 2)
	next.Payload = []byte(`{"text":"y"}`)
	require.NoError(t, r.Update(ctx, next, 1))

	stale := record(common.KindClip, "c1", 2)
	require.ErrorIs(t, r.Update(ctx, stale, 1), common.ErrVersionConflict)

	missing := record(common.KindClip, "nope", 2)
	require.ErrorIs(t, r.Update(ctx, missing, 1), common.ErrorNotFound)

	got, err := r.Get(ctx, common.KindClip, "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.JSONEq(t, `{"text":"y"}`, string(got.Payload))
}

func TestUpdate_Tombstone(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, record(common.KindFile, "f1", 1)))

	del := record(common.KindFile, "f1", 2)
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	del.Deleted = true
	del.DeletedAt = &at
	require.NoError(t, r.Update(ctx, del, 1))

	got, err := r.Get(ctx, common.KindFile, "f1")
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, at.Equal(*got.DeletedAt))
}

func TestList_Scopes(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	a := record(common.KindClip, "a", 1)
	b := record(common.KindClip, "b", 1)
	b.Pending = false
	c := record(common.KindClip, "c", 1)
	c.Deleted = true
	other := record(common.KindFilter, "t", 1)
	for _, rec := range []*models.Record{c, b, a, other} {
		require.NoError(t, r.Insert(ctx, rec))
	}

	ids := func(scope Scope) []string {
		recs, err := r.List(ctx, common.KindClip, scope)
		require.NoError(t, err)
		out := []string{}
		for _, rec := range recs {
			out = append(out, rec.ID)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b"}, ids(ScopeActive))
	assert.Equal(t, []string{"c"}, ids(ScopeTombstones))
	assert.Equal(t, []string{"a", "c"}, ids(ScopePending))

	_, err := r.List(ctx, common.KindClip, Scope(42))
	require.Error(t, err)

	n, err := r.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMarkSynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, record(common.KindClip, "c1", 3)))

	// Edited after the push: stays pending but remembers the revision.
	require.NoError(t, r.MarkSynced(ctx, common.KindClip, "c1", 2, 10))
	got, err := r.Get(ctx, common.KindClip, "c1")
	require.NoError(t, err)
	assert.True(t, got.Pending)
	assert.EqualValues(t, 10, got.RemoteVersion)

	require.NoError(t, r.MarkSynced(ctx, common.KindClip, "c1", 3, 11))
	got, err = r.Get(ctx, common.KindClip, "c1")
	require.NoError(t, err)
	assert.False(t, got.Pending)
	assert.EqualValues(t, 11, got.RemoteVersion)
	assert.EqualValues(t, 3, got.Version)

	require.ErrorIs(t, r.MarkSynced(ctx, common.KindClip, "nope", 1, 1), common.ErrorNotFound)
}

func TestFindByName_ExactActiveMatch(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	tag := record(common.KindFilter, "t1", 1)
	tag.Name = "Work"
	tag.FilterType = int(models.FilterTag)
	folder := record(common.KindFilter, "f1", 1)
	folder.Name = "Work"
	folder.FilterType = int(models.FilterFolder)
	gone := record(common.KindFilter, "t0", 1)
	gone.Name = "Old"
	gone.FilterType = int(models.FilterTag)
	gone.Deleted = true
	for _, rec := range []*models.Record{tag, folder, gone} {
		require.NoError(t, r.Insert(ctx, rec))
	}

	got, err := r.FindByName(ctx, int(models.FilterTag), "Work")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = r.FindByName(ctx, int(models.FilterTag), "work")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.FindByName(ctx, int(models.FilterTag), "Old")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
