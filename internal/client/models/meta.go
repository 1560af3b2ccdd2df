// Package models defines the synchronized entities (clips, files and
// filters), their shared sync metadata and the row format they are stored in.
package models

import (
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// Meta holds identity, versioning and tombstone state shared by every entity.
type Meta struct {
	// ID is the globally unique identifier of the entity.
	ID string
	// SyncVersion increases on every local mutation and never goes back.
	SyncVersion int64
	// RemoteVersion is the mirror revision last confirmed for this entity.
	// Zero means the mirror has never acknowledged it.
	RemoteVersion int64
	// PendingSync is set while local changes await a mirror acknowledgement.
	PendingSync bool
	// Deleted marks membership in the tombstone set.
	Deleted bool
	// DeletedAt is the deletion time for tombstones.
	DeletedAt *time.Time
	CreateDate time.Time
	// ModifyDate drives last-writer-wins conflict resolution.
	ModifyDate time.Time
	// DeviceID is the device that produced the current content.
	DeviceID string
}

// Entity is implemented by Clip, FileRef and Filter.
type Entity interface {
	Kind() common.Kind
	GetMeta() *Meta
}

// Tagged is implemented by entities that reference TAG filters.
type Tagged interface {
	GetTagIDs() []string
}

// GetMeta returns m itself so embedding types satisfy Entity.
func (m *Meta) GetMeta() *Meta { return m }
