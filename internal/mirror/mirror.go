// Package mirror defines the Remote Mirror Client: the per-account document
// store that devices push their entities to and pull changes from.
//
// Each entity kind has an active and a deleted sub-collection (see
// common.Kind). Every write is stamped with a per-account revision that
// only grows; a Checkpoint is the highest revision a device has merged.
package mirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// Mirror is one account's partition of the remote store.
//
// Any call may fail with common.ErrNetworkUnavailable or
// common.ErrRemoteRejected; both leave the remote unchanged for the failed
// unit and may be retried.
type Mirror interface {
	// PushActive upserts doc into the active sub-collection of kind and drops
	// a tombstone with the same id. Idempotent by id.
	PushActive(ctx context.Context, kind common.Kind, doc Document) (int64, error)

	// PushTombstone records that id was deleted at deletedAt. Idempotent.
	PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error)

	// Pull returns active writes and tombstones with a revision strictly
	// greater than since, and the checkpoint to pass next time.
	Pull(ctx context.Context, kind common.Kind, since Checkpoint) (*Changes, error)

	// Batch applies ops as one unit and returns the revision assigned to it.
	Batch(ctx context.Context, ops []Op) (int64, error)
}

// Backend hands out account partitions. Servers resolve the account from
// the caller's credentials.
type Backend interface {
	ForAccount(accountID string) Mirror
}

// Checkpoint is an opaque position in an account's change stream.
// The empty checkpoint means "from the beginning".
type Checkpoint string

// CheckpointAt encodes a revision as a checkpoint.
func CheckpointAt(revision int64) Checkpoint {
	return Checkpoint(strconv.FormatInt(revision, 10))
}

// Revision decodes the checkpoint.
func (c Checkpoint) Revision() (int64, error) {
	if c == "" {
		return 0, nil
	}
	rev, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil || rev < 0 {
		return 0, fmt.Errorf("%w: bad checkpoint %q", common.ErrRemoteRejected, string(c))
	}
	return rev, nil
}

// Change is an active document together with the revision that wrote it.
type Change struct {
	Revision int64    `json:"revision"`
	Doc      Document `json:"doc"`
}

// Tombstone is a deletion record.
type Tombstone struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
	Revision  int64     `json:"revision"`
}

// Changes is the result of Pull.
type Changes struct {
	Active     []Change    `json:"active"`
	Tombstones []Tombstone `json:"tombstones"`
	Checkpoint Checkpoint  `json:"checkpoint"`
}

// OpType enumerates batch operations.
type OpType int

const (
	OpPutActive OpType = iota + 1
	OpPutTombstone
	OpRemoveActive
)

func (t OpType) String() string {
	switch t {
	case OpPutActive:
		return "put_active"
	case OpPutTombstone:
		return "put_tombstone"
	case OpRemoveActive:
		return "remove_active"
	}
	return "op(" + strconv.Itoa(int(t)) + ")"
}

// Op is one step of a Batch.
type Op struct {
	Type      OpType      `json:"type"`
	Kind      common.Kind `json:"kind"`
	ID        string      `json:"id"`
	Doc       Document    `json:"doc,omitempty"`
	DeletedAt time.Time   `json:"deletedAt,omitempty"`
}

// PutActive builds an op equivalent to Mirror.PushActive.
func PutActive(kind common.Kind, doc Document) Op {
	return Op{Type: OpPutActive, Kind: kind, ID: doc.ID(), Doc: doc}
}

// PutTombstone builds an op equivalent to Mirror.PushTombstone.
func PutTombstone(kind common.Kind, id string, deletedAt time.Time) Op {
	return Op{Type: OpPutTombstone, Kind: kind, ID: id, DeletedAt: deletedAt}
}

// RemoveActive builds an op deleting the active document of id.
func RemoveActive(kind common.Kind, id string) Op {
	return Op{Type: OpRemoveActive, Kind: kind, ID: id}
}

// Validate rejects ops a mirror must not apply.
func (o Op) Validate() error {
	if !o.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", common.ErrRemoteRejected, o.Kind)
	}
	if o.ID == "" {
		return fmt.Errorf("%w: %s without id", common.ErrRemoteRejected, o.Type)
	}
	switch o.Type {
	case OpPutActive:
		if err := o.Doc.Validate(); err != nil {
			return err
		}
		if o.Doc.ID() != o.ID {
			return fmt.Errorf("%w: document id %q does not match %q", common.ErrRemoteRejected, o.Doc.ID(), o.ID)
		}
	case OpPutTombstone:
		if o.DeletedAt.IsZero() {
			return fmt.Errorf("%w: tombstone %s without deletion time", common.ErrRemoteRejected, o.ID)
		}
	case OpRemoveActive:
	default:
		return fmt.Errorf("%w: unknown op %d", common.ErrRemoteRejected, o.Type)
	}
	return nil
}

// ValidateOps checks every op of a batch.
func ValidateOps(ops []Op) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: empty batch", common.ErrRemoteRejected)
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	return nil
}
