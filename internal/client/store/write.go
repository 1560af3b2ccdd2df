package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// WriteOption modifies how Put and Delete treat a write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	remote    bool
	revision  int64
	deletedAt time.Time
	keepDates bool
}

// FromRemote marks a write as the application of a mirror change at
// revision: the entity is not pending afterwards and keeps the content,
// ModifyDate and DeviceID it arrived with.
func FromRemote(revision int64) WriteOption {
	return func(o *writeOptions) {
		o.remote = true
		o.revision = revision
	}
}

// DeletedAt sets the deletion time recorded by Delete instead of now.
func DeletedAt(t time.Time) WriteOption {
	return func(o *writeOptions) { o.deletedAt = t }
}

// KeepDates keeps the CreateDate and ModifyDate of a new entity when they
// are set. Zero dates still become now. Updates ignore it.
func KeepDates() WriteOption {
	return func(o *writeOptions) { o.keepDates = true }
}

func collect(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Put writes e if the stored version equals expectedVersion (0 creates a
// new entity, assigning an id when e has none). It returns the stored copy
// with its new version. e itself is not modified.
func (s *Store) Put(ctx context.Context, e models.Entity, expectedVersion int64, opts ...WriteOption) (models.Entity, error) {
	o := collect(opts)

	next, err := models.Clone(e)
	if err != nil {
		return nil, err
	}
	m := next.GetMeta()

	var current models.Entity
	if expectedVersion > 0 {
		if m.ID == "" {
			return nil, common.ErrorNotFound
		}
		current, err = s.GetAny(ctx, next.Kind(), m.ID)
		if err != nil {
			return nil, err
		}
		if current.GetMeta().Deleted && !o.remote {
			return nil, common.ErrorNotFound
		}
		if current.GetMeta().SyncVersion != expectedVersion {
			return nil, common.ErrVersionConflict
		}
	} else if m.ID == "" {
		m.ID = s.newID()
	}

	now := s.timestamp()
	supplied := m.ModifyDate
	if o.remote {
		m.SyncVersion = max(expectedVersion+1, m.SyncVersion)
		m.RemoteVersion = o.revision
		m.PendingSync = false
		if m.ModifyDate.IsZero() {
			m.ModifyDate = now
		}
	} else {
		if err := s.validate(ctx, next); err != nil {
			return nil, err
		}
		m.SyncVersion = expectedVersion + 1
		m.PendingSync = true
		m.ModifyDate = now
		if o.keepDates && current == nil && !supplied.IsZero() {
			m.ModifyDate = supplied.UTC().Truncate(time.Millisecond)
		}
		m.DeviceID = s.deviceID
		m.RemoteVersion = 0
		switch {
		case current != nil:
			m.RemoteVersion = current.GetMeta().RemoteVersion
			m.CreateDate = current.GetMeta().CreateDate
		case o.keepDates:
			m.CreateDate = m.CreateDate.UTC().Truncate(time.Millisecond)
		default:
			m.CreateDate = time.Time{}
		}
	}
	if m.CreateDate.IsZero() {
		m.CreateDate = m.ModifyDate
	}
	m.Deleted = false
	m.DeletedAt = nil

	if err := s.write(ctx, next, expectedVersion); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "entity stored", "kind", next.Kind(), "id", m.ID, "version", m.SyncVersion, "remote", o.remote)
	return next, nil
}

// Delete moves an active entity to the tombstone set. With FromRemote an
// already tombstoned entity is accepted and the tombstone is refreshed.
func (s *Store) Delete(ctx context.Context, kind common.Kind, id string, expectedVersion int64, opts ...WriteOption) error {
	o := collect(opts)

	e, err := s.GetAny(ctx, kind, id)
	if err != nil {
		return err
	}
	m := e.GetMeta()
	if m.Deleted && !o.remote {
		return common.ErrorNotFound
	}
	if m.SyncVersion != expectedVersion {
		return common.ErrVersionConflict
	}

	at := o.deletedAt
	if at.IsZero() {
		at = s.timestamp()
	}
	at = at.UTC()

	m.Deleted = true
	m.DeletedAt = &at
	m.SyncVersion = expectedVersion + 1
	if o.remote {
		m.PendingSync = false
		m.RemoteVersion = max(m.RemoteVersion, o.revision)
	} else {
		m.PendingSync = true
		m.ModifyDate = at
		m.DeviceID = s.deviceID
	}

	if err := s.write(ctx, e, expectedVersion); err != nil {
		return err
	}
	s.logger.Debug(ctx, "entity deleted", "kind", kind, "id", id, "version", m.SyncVersion, "remote", o.remote)
	return nil
}

// Restore moves a tombstoned entity back to the active set with a new
// version. It returns common.ErrorNotFound when id is not a tombstone.
func (s *Store) Restore(ctx context.Context, kind common.Kind, id string) (models.Entity, error) {
	e, err := s.GetAny(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	m := e.GetMeta()
	if !m.Deleted {
		return nil, common.ErrorNotFound
	}

	expected := m.SyncVersion
	m.Deleted = false
	m.DeletedAt = nil
	m.SyncVersion = expected + 1
	m.PendingSync = true
	m.ModifyDate = s.timestamp()
	m.DeviceID = s.deviceID

	if err := s.write(ctx, e, expected); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) write(ctx context.Context, e models.Entity, expectedVersion int64) error {
	rec, err := models.Encode(e)
	if err != nil {
		return err
	}
	if expectedVersion == 0 {
		return s.entities.Insert(ctx, rec)
	}
	return s.entities.Update(ctx, rec, expectedVersion)
}

// validate enforces the tag reference and folder tree invariants of local
// writes.
func (s *Store) validate(ctx context.Context, e models.Entity) error {
	if t, ok := e.(models.Tagged); ok {
		for _, tagID := range t.GetTagIDs() {
			f, err := s.Get(ctx, common.KindFilter, tagID)
			if isNotFound(err) {
				return fmt.Errorf("%w: %s", common.ErrUnknownTag, tagID)
			}
			if err != nil {
				return err
			}
			if !f.(*models.Filter).IsTag() {
				return fmt.Errorf("%w: %s is not a tag", common.ErrUnknownTag, tagID)
			}
		}
	}

	if f, ok := e.(*models.FileRef); ok && f.ParentID != "" {
		return s.checkParent(ctx, f.ID, f.ParentID)
	}
	return nil
}

// checkParent walks up from parentID and fails if it reaches id.
func (s *Store) checkParent(ctx context.Context, id, parentID string) error {
	seen := map[string]struct{}{}
	for cur := parentID; cur != ""; {
		if cur == id {
			return fmt.Errorf("%w: %s cannot be moved under %s", common.ErrFolderCycle, id, parentID)
		}
		if _, ok := seen[cur]; ok {
			return fmt.Errorf("%w: existing loop at %s", common.ErrFolderCycle, cur)
		}
		seen[cur] = struct{}{}

		e, err := s.Get(ctx, common.KindFile, cur)
		if err != nil {
			return fmt.Errorf("parent folder %s: %w", cur, err)
		}
		folder := e.(*models.FileRef)
		if !folder.Folder {
			return fmt.Errorf("%w: %s", common.ErrInvalidParent, cur)
		}
		cur = folder.ParentID
	}
	return nil
}
