// Package services holds the device-side application services: the sync
// coordinator that reconciles the local store with the remote mirror and
// the importer for legacy snapshots.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/mapper"
	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/client/state"
	"github.com/dmitrijs2005/clipkeeper/internal/client/store"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
)

// Result summarizes one pass over one kind.
type Result struct {
	Kind       common.Kind
	Pulled     int
	Applied    int
	Deleted    int
	Conflicts  int
	Pushed     int
	Failed     int
	Checkpoint mirror.Checkpoint
}

// Coordinator runs sync passes between the store and a mirror. Passes over
// different kinds may run concurrently; a second pass over the same kind
// fails with common.ErrSyncInProgress.
type Coordinator struct {
	store  *store.Store
	mirror mirror.Mirror
	logger logging.Logger
	state  *state.SyncState
	now    func() time.Time

	mu      sync.Mutex
	running map[common.Kind]bool
}

type CoordinatorOption func(*Coordinator)

// WithSyncState publishes pass progress to st.
func WithSyncState(st *state.SyncState) CoordinatorOption {
	return func(c *Coordinator) { c.state = st }
}

// WithRetryPolicy retries mirror calls that fail with
// common.ErrNetworkUnavailable.
func WithRetryPolicy(p mirror.RetryPolicy) CoordinatorOption {
	return func(c *Coordinator) { c.mirror = mirror.WithRetry(c.mirror, p) }
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(st *store.Store, m mirror.Mirror, l logging.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:   st,
		mirror:  m,
		logger:  l.With("module", "sync"),
		now:     time.Now,
		running: make(map[common.Kind]bool),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) acquire(kind common.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[kind] {
		return fmt.Errorf("%w: %s", common.ErrSyncInProgress, kind)
	}
	c.running[kind] = true
	return nil
}

func (c *Coordinator) release(kind common.Kind) {
	c.mu.Lock()
	delete(c.running, kind)
	c.mu.Unlock()
}

// SyncAll runs a pass over every kind, filters first. It stops at the first
// failed pass. Pushes that failed inside otherwise successful passes are
// reported as a retryable error after all kinds ran.
func (c *Coordinator) SyncAll(ctx context.Context) ([]*Result, error) {
	if c.state != nil {
		c.state.Begin()
	}

	var (
		results []*Result
		failed  int
		err     error
	)
	for _, kind := range common.Kinds {
		var r *Result
		r, err = c.SyncKind(ctx, kind)
		if err != nil {
			break
		}
		results = append(results, r)
		failed += r.Failed
	}
	if err == nil && failed > 0 {
		err = fmt.Errorf("%d pushes failed: %w", failed, common.ErrNetworkUnavailable)
	}

	c.publish(ctx, err)
	return results, err
}

func (c *Coordinator) publish(ctx context.Context, err error) {
	if c.state == nil {
		return
	}
	pending, cerr := c.store.PendingCount(context.WithoutCancel(ctx))
	if cerr != nil {
		c.logger.Warn(ctx, "failed to count pending entities", "error", cerr)
	}
	c.state.Finish(pending, err, c.now())
}

// plan is the set of local effects of a pass, committed together.
type plan struct {
	applies []apply
	deletes []deletion
	acks    []ack
	// superseded ids are resolved by the pull and must not be pushed.
	superseded map[string]bool
	// resurrect ids are pushed even if they are not pending.
	resurrect map[string]bool
}

type apply struct {
	entity   models.Entity
	expected int64
	revision int64
}

type deletion struct {
	id       string
	expected int64
	at       time.Time
	revision int64
}

type ack struct {
	id       string
	version  int64
	revision int64
}

// SyncKind runs one pass: pull, merge remote changes and deletions, push
// local pending entities, then commit every local effect and the new
// checkpoint in one transaction. A failed pull or a cancelled context
// leaves the store untouched.
func (c *Coordinator) SyncKind(ctx context.Context, kind common.Kind) (*Result, error) {
	if err := c.acquire(kind); err != nil {
		return nil, err
	}
	defer c.release(kind)

	log := c.logger.With("kind", kind)
	res := &Result{Kind: kind}

	since, err := c.store.Checkpoint(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s checkpoint: %w", kind, err)
	}

	changes, err := c.mirror.Pull(ctx, kind, mirror.Checkpoint(since))
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", kind, err)
	}
	res.Pulled = len(changes.Active) + len(changes.Tombstones)
	res.Checkpoint = changes.Checkpoint

	p, err := c.merge(ctx, log, kind, changes, res)
	if err != nil {
		return nil, err
	}

	if err := c.push(ctx, log, kind, p, res); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, log, kind, p, changes.Checkpoint, res); err != nil {
		return nil, fmt.Errorf("commit %s: %w", kind, err)
	}

	log.Info(ctx, "sync pass finished",
		"pulled", res.Pulled, "applied", res.Applied, "deleted", res.Deleted,
		"conflicts", res.Conflicts, "pushed", res.Pushed, "failed", res.Failed)
	return res, nil
}

func (c *Coordinator) local(ctx context.Context, kind common.Kind, id string) (*models.Meta, error) {
	e, err := c.store.GetAny(ctx, kind, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.GetMeta(), nil
}

func (c *Coordinator) merge(ctx context.Context, log logging.Logger, kind common.Kind, changes *mirror.Changes, res *Result) (*plan, error) {
	p := &plan{superseded: map[string]bool{}, resurrect: map[string]bool{}}
	deviceID := c.store.DeviceID()

	tombstoned := make(map[string]bool, len(changes.Tombstones))
	for _, t := range changes.Tombstones {
		tombstoned[t.ID] = true
	}

	for _, ch := range changes.Active {
		id := ch.Doc.ID()
		if tombstoned[id] {
			continue
		}
		local, err := c.local(ctx, kind, id)
		if err != nil {
			return nil, err
		}

		remote := RemoteChange{
			Revision:    ch.Revision,
			SyncVersion: ch.Doc.SyncVersion(),
			ModifyDate:  ch.Doc.ModifyDate(),
			DeviceID:    ch.Doc.String(mirror.FieldDeviceID),
		}
		switch d := Reconcile(local, remote, deviceID); d {
		case DecisionApplyRemote:
			e, err := mapper.FromDocument(kind, ch.Doc)
			if err != nil {
				log.Warn(ctx, "skipping malformed document", "id", id, "error", err)
				continue
			}
			var expected int64
			if local != nil {
				expected = local.SyncVersion
				if local.PendingSync {
					res.Conflicts++
				}
			}
			p.applies = append(p.applies, apply{entity: e, expected: expected, revision: ch.Revision})
			p.superseded[id] = true
		case DecisionAckEcho:
			p.acks = append(p.acks, ack{id: id, version: local.SyncVersion, revision: ch.Revision})
			p.superseded[id] = true
		case DecisionKeepLocal:
			res.Conflicts++
			log.Debug(ctx, "local change wins", "id", id)
		}
	}

	for _, t := range changes.Tombstones {
		local, err := c.local(ctx, kind, t.ID)
		if err != nil {
			return nil, err
		}
		switch ReconcileTombstone(local, RemoteDeletion{Revision: t.Revision, DeletedAt: t.DeletedAt}) {
		case DecisionDeleteLocal:
			p.deletes = append(p.deletes, deletion{id: t.ID, expected: local.SyncVersion, at: t.DeletedAt, revision: t.Revision})
			p.superseded[t.ID] = true
		case DecisionResurrect:
			log.Info(ctx, "entity edited after remote deletion, restoring", "id", t.ID)
			p.resurrect[t.ID] = true
		}
	}
	return p, nil
}

func (c *Coordinator) push(ctx context.Context, log logging.Logger, kind common.Kind, p *plan, res *Result) error {
	pending, err := c.store.ListPending(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list pending %s: %w", kind, err)
	}
	queued := make(map[string]bool, len(pending))
	for _, e := range pending {
		queued[e.GetMeta().ID] = true
	}
	for id := range p.resurrect {
		if queued[id] {
			continue
		}
		e, err := c.store.GetAny(ctx, kind, id)
		if err != nil {
			return err
		}
		pending = append(pending, e)
	}

	for _, e := range pending {
		m := e.GetMeta()
		if p.superseded[m.ID] {
			continue
		}

		rev, err := c.pushOne(ctx, e)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res.Failed++
			log.Warn(ctx, "push failed, entity stays pending", "id", m.ID, "error", err)
			continue
		}
		res.Pushed++
		p.acks = append(p.acks, ack{id: m.ID, version: m.SyncVersion, revision: rev})
	}
	return nil
}

func (c *Coordinator) pushOne(ctx context.Context, e models.Entity) (int64, error) {
	m := e.GetMeta()
	if m.Deleted {
		at := m.ModifyDate
		if m.DeletedAt != nil {
			at = *m.DeletedAt
		}
		return c.mirror.Batch(ctx, []mirror.Op{
			mirror.PutTombstone(e.Kind(), m.ID, at),
			mirror.RemoveActive(e.Kind(), m.ID),
		})
	}
	doc, err := mapper.ToDocument(e)
	if err != nil {
		return 0, err
	}
	return c.mirror.PushActive(ctx, e.Kind(), doc)
}

func (c *Coordinator) commit(ctx context.Context, log logging.Logger, kind common.Kind, p *plan, checkpoint mirror.Checkpoint, res *Result) error {
	var applied, deleted int
	err := c.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		for _, a := range p.applies {
			_, err := tx.Put(ctx, a.entity, a.expected, store.FromRemote(a.revision))
			if errors.Is(err, common.ErrVersionConflict) {
				log.Warn(ctx, "entity changed during sync, remote change deferred", "id", a.entity.GetMeta().ID)
				continue
			}
			if err != nil {
				return err
			}
			applied++
		}
		for _, d := range p.deletes {
			err := tx.Delete(ctx, kind, d.id, d.expected, store.FromRemote(d.revision), store.DeletedAt(d.at))
			if errors.Is(err, common.ErrVersionConflict) {
				log.Warn(ctx, "entity changed during sync, remote deletion deferred", "id", d.id)
				continue
			}
			if err != nil {
				return err
			}
			deleted++
		}
		for _, a := range p.acks {
			if err := tx.MarkSynced(ctx, kind, a.id, a.version, a.revision); err != nil {
				return err
			}
		}
		return tx.SetCheckpoint(ctx, kind, string(checkpoint))
	})
	if err != nil {
		return err
	}
	res.Applied, res.Deleted = applied, deleted
	return nil
}
