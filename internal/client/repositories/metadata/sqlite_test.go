package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/clipkeeper/internal/client/migrations"

	_ "modernc.org/sqlite"
)

func newRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(context.Background(), db))
	return NewSQLiteRepository(db), db
}

func TestSetGetOverwrite(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "checkpoint:clip")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "checkpoint:clip", "41"))
	require.NoError(t, r.Set(ctx, "checkpoint:clip", "42"))

	v, ok, err := r.Get(ctx, "checkpoint:clip")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestList_Prefix(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	for k, v := range map[string]string{
		"checkpoint:clip":   "1",
		"checkpoint:filter": "2",
		"checkpoint":        "no colon",
		"device_id":         "d",
	} {
		require.NoError(t, r.Set(ctx, k, v))
	}

	got, err := r.List(ctx, "checkpoint:")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"checkpoint:clip": "1", "checkpoint:filter": "2"}, got)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestClosedDatabase(t *testing.T) {
	r, db := newRepo(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, _, err := r.Get(ctx, "k")
	assert.ErrorContains(t, err, `failed to read "k"`)
	assert.ErrorContains(t, r.Set(ctx, "k", "v"), `failed to write "k"`)
	_, err = r.List(ctx, "x")
	assert.ErrorContains(t, err, `failed to list "x"`)
}
