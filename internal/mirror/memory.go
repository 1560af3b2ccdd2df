package mirror

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

type memDoc struct {
	revision int64
	doc      Document
}

type memTombstone struct {
	revision  int64
	deletedAt time.Time
}

type memAccount struct {
	revision int64
	active   map[common.Kind]map[string]memDoc
	deleted  map[common.Kind]map[string]memTombstone
}

func newMemAccount() *memAccount {
	a := &memAccount{
		active:  make(map[common.Kind]map[string]memDoc),
		deleted: make(map[common.Kind]map[string]memTombstone),
	}
	for _, k := range common.Kinds {
		a.active[k] = make(map[string]memDoc)
		a.deleted[k] = make(map[string]memTombstone)
	}
	return a
}

// Memory is a process-local Backend. Batches are atomic.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*memAccount)}
}

// ForAccount returns the partition of accountID, creating it on first use.
func (m *Memory) ForAccount(accountID string) Mirror {
	return &memoryMirror{store: m, account: accountID}
}

// Active returns a copy of the active documents of kind.
func (m *Memory) Active(accountID string, kind common.Kind) map[string]Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Document)
	for id, d := range m.account(accountID).active[kind] {
		out[id] = d.doc.Clone()
	}
	return out
}

// Tombstones returns the deletion times recorded for kind.
func (m *Memory) Tombstones(accountID string, kind common.Kind) map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time)
	for id, t := range m.account(accountID).deleted[kind] {
		out[id] = t.deletedAt
	}
	return out
}

// must hold mu
func (m *Memory) account(id string) *memAccount {
	a, ok := m.accounts[id]
	if !ok {
		a = newMemAccount()
		m.accounts[id] = a
	}
	return a
}

type memoryMirror struct {
	store   *Memory
	account string
}

func (mm *memoryMirror) PushActive(ctx context.Context, kind common.Kind, doc Document) (int64, error) {
	return mm.Batch(ctx, []Op{PutActive(kind, doc)})
}

func (mm *memoryMirror) PushTombstone(ctx context.Context, kind common.Kind, id string, deletedAt time.Time) (int64, error) {
	return mm.Batch(ctx, []Op{PutTombstone(kind, id, deletedAt)})
}

func (mm *memoryMirror) Batch(ctx context.Context, ops []Op) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateOps(ops); err != nil {
		return 0, err
	}

	mm.store.mu.Lock()
	defer mm.store.mu.Unlock()

	a := mm.store.account(mm.account)
	a.revision++
	rev := a.revision

	for _, op := range ops {
		switch op.Type {
		case OpPutActive:
			a.active[op.Kind][op.ID] = memDoc{revision: rev, doc: op.Doc.Clone()}
			delete(a.deleted[op.Kind], op.ID)
		case OpPutTombstone:
			a.deleted[op.Kind][op.ID] = memTombstone{revision: rev, deletedAt: op.DeletedAt}
		case OpRemoveActive:
			delete(a.active[op.Kind], op.ID)
		}
	}
	return rev, nil
}

func (mm *memoryMirror) Pull(ctx context.Context, kind common.Kind, since Checkpoint) (*Changes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrRemoteRejected, kind)
	}
	from, err := since.Revision()
	if err != nil {
		return nil, err
	}

	mm.store.mu.Lock()
	defer mm.store.mu.Unlock()

	a := mm.store.account(mm.account)
	out := &Changes{}
	top := from
	for _, d := range a.active[kind] {
		if d.revision > from {
			out.Active = append(out.Active, Change{Revision: d.revision, Doc: d.doc.Clone()})
			top = max(top, d.revision)
		}
	}
	for id, t := range a.deleted[kind] {
		if t.revision > from {
			out.Tombstones = append(out.Tombstones, Tombstone{ID: id, DeletedAt: t.deletedAt, Revision: t.revision})
			top = max(top, t.revision)
		}
	}
	SortChanges(out)
	out.Checkpoint = CheckpointAt(top)
	return out, nil
}

// SortChanges orders changes by revision, then id.
func SortChanges(c *Changes) {
	slices.SortFunc(c.Active, func(a, b Change) int {
		if c := cmp.Compare(a.Revision, b.Revision); c != 0 {
			return c
		}
		return strings.Compare(a.Doc.ID(), b.Doc.ID())
	})
	slices.SortFunc(c.Tombstones, func(a, b Tombstone) int {
		if c := cmp.Compare(a.Revision, b.Revision); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
