// Package entities persists entity records in the local SQLite database.
//
// The repository knows nothing about entity semantics: it stores and
// returns models.Record values and enforces optimistic concurrency with a
// version predicate on every update.
package entities

import (
	"context"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// Scope selects which records List returns.
type Scope int

const (
	ScopeActive Scope = iota
	ScopeTombstones
	ScopePending
)

// Repository describes record persistence for all entity kinds.
type Repository interface {
	// Get returns a record, active or tombstoned, or common.ErrorNotFound.
	Get(ctx context.Context, kind common.Kind, id string) (*models.Record, error)

	// Insert stores a new record. An existing id yields common.ErrVersionConflict.
	Insert(ctx context.Context, r *models.Record) error

	// Update replaces a record whose stored version equals expectedVersion.
	Update(ctx context.Context, r *models.Record, expectedVersion int64) error

	// MarkSynced records the mirror revision of a pushed record and clears
	// the pending flag if the record still has pushedVersion.
	MarkSynced(ctx context.Context, kind common.Kind, id string, pushedVersion, revision int64) error

	// List returns records of a kind in the given scope, ordered by id.
	List(ctx context.Context, kind common.Kind, scope Scope) ([]*models.Record, error)

	// FindByName returns the active filter record of filterType with the
	// exact name, or common.ErrorNotFound.
	FindByName(ctx context.Context, filterType int, name string) (*models.Record, error)

	// CountPending returns the number of pending records across all kinds.
	CountPending(ctx context.Context) (int, error)
}
