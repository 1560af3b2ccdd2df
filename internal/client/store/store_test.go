package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(context.Background(), db))

	clock := &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	return New(db,
		WithDeviceID("device-a"),
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	)
}

func putTag(t *testing.T, s *Store, name string) *models.Filter {
	t.Helper()
	e, err := s.Put(context.Background(), &models.Filter{Type: models.FilterTag, Name: name}, 0)
	require.NoError(t, err)
	return e.(*models.Filter)
}

func TestPut_CreateAssignsIdentityAndVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := &models.Clip{Text: "hello"}
	e, err := s.Put(ctx, src, 0)
	require.NoError(t, err)

	m := e.GetMeta()
	assert.Equal(t, "id-001", m.ID)
	assert.EqualValues(t, 1, m.SyncVersion)
	assert.True(t, m.PendingSync)
	assert.Equal(t, "device-a", m.DeviceID)
	assert.False(t, m.ModifyDate.IsZero())
	assert.Equal(t, m.ModifyDate, m.CreateDate)
	assert.Empty(t, src.ID, "caller's entity must not be modified")

	got, err := s.Get(ctx, common.KindClip, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.(*models.Clip).Text)
}

func TestPut_KeepDatesOnInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2019, 5, 1, 8, 30, 0, 0, time.UTC)
	modified := time.Date(2020, 2, 3, 4, 5, 6, 7_000_000, time.UTC)

	tests := []struct {
		name         string
		create, mod  time.Time
		opts         []WriteOption
		wantCreate   time.Time
		wantModified time.Time
	}{
		{name: "both kept", create: created, mod: modified, opts: []WriteOption{KeepDates()}, wantCreate: created, wantModified: modified},
		{name: "missing create follows modify", mod: modified, opts: []WriteOption{KeepDates()}, wantCreate: modified, wantModified: modified},
		{name: "without option", create: created, mod: modified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.Clip{Text: tt.name}
			c.CreateDate = tt.create
			c.ModifyDate = tt.mod
			e, err := s.Put(ctx, c, 0, tt.opts...)
			require.NoError(t, err)

			got, err := s.Get(ctx, common.KindClip, e.GetMeta().ID)
			require.NoError(t, err)
			m := got.GetMeta()
			if tt.wantModified.IsZero() {
				assert.True(t, m.ModifyDate.After(modified), "expected the store clock, got %v", m.ModifyDate)
				assert.Equal(t, m.ModifyDate, m.CreateDate)
				return
			}
			assert.True(t, tt.wantCreate.Equal(m.CreateDate), "create %v", m.CreateDate)
			assert.True(t, tt.wantModified.Equal(m.ModifyDate), "modify %v", m.ModifyDate)
			assert.True(t, m.PendingSync)
		})
	}

	t.Run("ignored on update", func(t *testing.T) {
		c := &models.Clip{Text: "v1"}
		c.ModifyDate = modified
		e, err := s.Put(ctx, c, 0, KeepDates())
		require.NoError(t, err)

		next := e.(*models.Clip)
		next.Text = "v2"
		updated, err := s.Put(ctx, next, 1, KeepDates())
		require.NoError(t, err)
		assert.True(t, updated.GetMeta().ModifyDate.After(modified))
		assert.True(t, modified.Equal(updated.GetMeta().CreateDate))
	})
}

func TestPut_OptimisticConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, &models.Clip{Text: "v1"}, 0)
	require.NoError(t, err)

	first := e.(*models.Clip)
	first.Text = "v2"
	updated, err := s.Put(ctx, first, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.GetMeta().SyncVersion)
	assert.True(t, updated.GetMeta().ModifyDate.After(e.GetMeta().ModifyDate))
	assert.Equal(t, e.GetMeta().CreateDate, updated.GetMeta().CreateDate)

	first.Text = "lost update"
	_, err = s.Put(ctx, first, 1)
	require.ErrorIs(t, err, common.ErrVersionConflict)

	_, err = s.Put(ctx, &models.Clip{Meta: models.Meta{ID: first.ID}, Text: "dup"}, 0)
	require.ErrorIs(t, err, common.ErrVersionConflict)

	_, err = s.Put(ctx, &models.Clip{Meta: models.Meta{ID: "missing"}}, 3)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPut_ConcurrentWritersOnlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, &models.Clip{Text: "base"}, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := *e.(*models.Clip)
			c.Text = fmt.Sprintf("writer %d", i)
			_, results[i] = s.Put(ctx, &c, 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, common.ErrVersionConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestPut_RejectsUnknownTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, &models.Clip{Text: "x", TagIDs: []string{"nope"}}, 0)
	require.ErrorIs(t, err, common.ErrUnknownTag)

	folder, err := s.Put(ctx, &models.Filter{Type: models.FilterFolder, Name: "F"}, 0)
	require.NoError(t, err)
	_, err = s.Put(ctx, &models.Clip{Text: "x", TagIDs: []string{folder.GetMeta().ID}}, 0)
	require.ErrorIs(t, err, common.ErrUnknownTag)

	tag := putTag(t, s, "Work")
	_, err = s.Put(ctx, &models.Clip{Text: "x", TagIDs: []string{tag.ID}}, 0)
	require.NoError(t, err)
}

func TestPut_FolderCycleRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.Put(ctx, &models.FileRef{Title: "root", Folder: true}, 0)
	require.NoError(t, err)
	child, err := s.Put(ctx, &models.FileRef{Title: "child", Folder: true, ParentID: root.GetMeta().ID}, 0)
	require.NoError(t, err)
	grandchild, err := s.Put(ctx, &models.FileRef{Title: "grandchild", Folder: true, ParentID: child.GetMeta().ID}, 0)
	require.NoError(t, err)

	moved := root.(*models.FileRef)
	moved.ParentID = grandchild.GetMeta().ID
	_, err = s.Put(ctx, moved, moved.SyncVersion)
	require.ErrorIs(t, err, common.ErrFolderCycle)

	moved.ParentID = moved.ID
	_, err = s.Put(ctx, moved, moved.SyncVersion)
	require.ErrorIs(t, err, common.ErrFolderCycle)

	file, err := s.Put(ctx, &models.FileRef{Title: "a.txt"}, 0)
	require.NoError(t, err)
	_, err = s.Put(ctx, &models.FileRef{Title: "b.txt", ParentID: file.GetMeta().ID}, 0)
	require.ErrorIs(t, err, common.ErrInvalidParent)

	_, err = s.Put(ctx, &models.FileRef{Title: "c.txt", ParentID: "ghost"}, 0)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, &models.Clip{Text: "keep me"}, 0)
	require.NoError(t, err)
	id := e.GetMeta().ID

	require.ErrorIs(t, s.Delete(ctx, common.KindClip, id, 7), common.ErrVersionConflict)
	require.NoError(t, s.Delete(ctx, common.KindClip, id, 1))

	_, err = s.Get(ctx, common.KindClip, id)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.ErrorIs(t, s.Delete(ctx, common.KindClip, id, 2), common.ErrorNotFound)

	tombs, err := s.ListTombstones(ctx, common.KindClip)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.NotNil(t, tombs[0].GetMeta().DeletedAt)
	assert.True(t, tombs[0].GetMeta().PendingSync)

	restored, err := s.Restore(ctx, common.KindClip, id)
	require.NoError(t, err)
	assert.Equal(t, id, restored.GetMeta().ID)
	assert.EqualValues(t, 3, restored.GetMeta().SyncVersion)
	assert.Equal(t, "keep me", restored.(*models.Clip).Text)

	active, err := s.ListActive(ctx, common.KindClip)
	require.NoError(t, err)
	require.Len(t, active, 1)
	tombs, err = s.ListTombstones(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Empty(t, tombs)

	_, err = s.Restore(ctx, common.KindClip, id)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPut_OnTombstoneIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, &models.Clip{Text: "x"}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, common.KindClip, e.GetMeta().ID, 1))

	_, err = s.Put(ctx, e, 2)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFromRemote_ClearsPendingAndKeepsOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	modified := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	remote := &models.Clip{
		Meta: models.Meta{ID: "r1", SyncVersion: 9, ModifyDate: modified, DeviceID: "device-b"},
		Text: "from b",
	}
	e, err := s.Put(ctx, remote, 0, FromRemote(40))
	require.NoError(t, err)

	m := e.GetMeta()
	assert.False(t, m.PendingSync)
	assert.EqualValues(t, 9, m.SyncVersion)
	assert.EqualValues(t, 40, m.RemoteVersion)
	assert.Equal(t, "device-b", m.DeviceID)
	assert.Equal(t, modified, m.ModifyDate)

	pending, err := s.ListPending(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A lower remote syncVersion still moves the local version forward.
	older := &models.Clip{Meta: models.Meta{ID: "r1", SyncVersion: 2, ModifyDate: modified, DeviceID: "device-b"}, Text: "again"}
	e, err = s.Put(ctx, older, 9, FromRemote(41))
	require.NoError(t, err)
	assert.EqualValues(t, 10, e.GetMeta().SyncVersion)

	require.NoError(t, s.Delete(ctx, common.KindClip, "r1", 10, FromRemote(42), DeletedAt(modified.Add(time.Hour))))
	tomb, err := s.GetAny(ctx, common.KindClip, "r1")
	require.NoError(t, err)
	assert.True(t, tomb.GetMeta().Deleted)
	assert.False(t, tomb.GetMeta().PendingSync)
	assert.Equal(t, modified.Add(time.Hour), *tomb.GetMeta().DeletedAt)

	// Remote resurrection of a tombstone.
	back := &models.Clip{Meta: models.Meta{ID: "r1", ModifyDate: modified.Add(2 * time.Hour), DeviceID: "device-b"}, Text: "back"}
	e, err = s.Put(ctx, back, 11, FromRemote(43))
	require.NoError(t, err)
	assert.False(t, e.GetMeta().Deleted)
}

func TestMarkSynced_RespectsConcurrentEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Put(ctx, &models.Clip{Text: "a"}, 0)
	require.NoError(t, err)
	id := e.GetMeta().ID

	e.(*models.Clip).Text = "b"
	_, err = s.Put(ctx, e, 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, common.KindClip, id, 1, 5))
	got, err := s.Get(ctx, common.KindClip, id)
	require.NoError(t, err)
	assert.True(t, got.GetMeta().PendingSync)

	require.NoError(t, s.MarkSynced(ctx, common.KindClip, id, 2, 6))
	got, err = s.Get(ctx, common.KindClip, id)
	require.NoError(t, err)
	assert.False(t, got.GetMeta().PendingSync)
	assert.EqualValues(t, 6, got.GetMeta().RemoteVersion)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindTagByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := putTag(t, s, "Work")

	got, err := s.FindTagByName(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, got.ID)

	_, err = s.FindTagByName(ctx, "WORK")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCheckpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp, err := s.Checkpoint(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Empty(t, cp)

	require.NoError(t, s.SetCheckpoint(ctx, common.KindClip, "17"))
	require.NoError(t, s.SetCheckpoint(ctx, common.KindFilter, "3"))

	cp, err = s.Checkpoint(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Equal(t, "17", cp)

	all, err := s.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[common.Kind]string{common.KindClip: "17", common.KindFilter: "3"}, all)
}

func TestWithTx_RollsBackEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx *Store) error {
		if _, err := tx.Put(ctx, &models.Clip{Text: "tx"}, 0); err != nil {
			return err
		}
		if err := tx.SetCheckpoint(ctx, common.KindClip, "9"); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(ctx context.Context, inner *Store) error {
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	active, err := s.ListActive(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Empty(t, active)

	cp, err := s.Checkpoint(ctx, common.KindClip)
	require.NoError(t, err)
	assert.Empty(t, cp)
}

func TestOpen_PersistsDeviceID(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/local.db"

	s1, err := Open(ctx, dsn)
	require.NoError(t, err)
	id := s1.DeviceID()
	require.NotEmpty(t, id)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, id, s2.DeviceID())
}
