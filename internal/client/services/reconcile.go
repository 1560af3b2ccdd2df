package services

import (
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
)

// Decision is the outcome of comparing a local entity with a mirror change.
type Decision int

const (
	// DecisionSkip: the change is already reflected locally.
	DecisionSkip Decision = iota
	// DecisionApplyRemote: overwrite the local entity with the remote one.
	DecisionApplyRemote
	// DecisionKeepLocal: the local pending change wins and will be pushed.
	DecisionKeepLocal
	// DecisionAckEcho: the change is our own unacknowledged push.
	DecisionAckEcho
	// DecisionDeleteLocal: move the local entity to the tombstone set.
	DecisionDeleteLocal
	// DecisionResurrect: the local entity was edited after the remote
	// deletion; keep it and push it back.
	DecisionResurrect
)

func (d Decision) String() string {
	switch d {
	case DecisionApplyRemote:
		return "apply_remote"
	case DecisionKeepLocal:
		return "keep_local"
	case DecisionAckEcho:
		return "ack_echo"
	case DecisionDeleteLocal:
		return "delete_local"
	case DecisionResurrect:
		return "resurrect"
	}
	return "skip"
}

// RemoteChange is the part of a pulled active document reconciliation
// looks at.
type RemoteChange struct {
	Revision    int64
	SyncVersion int64
	ModifyDate  time.Time
	DeviceID    string
}

// RemoteDeletion is a pulled tombstone.
type RemoteDeletion struct {
	Revision  int64
	DeletedAt time.Time
}

// Reconcile decides what to do with an active remote change for an entity
// whose local state is local (nil when the device has never seen it).
// deviceID identifies this device.
//
// Without local pending changes the newer mirror revision wins. With
// pending changes the later ModifyDate wins as a whole; equal dates are
// broken by the larger DeviceID, and the remote side wins a full tie.
func Reconcile(local *models.Meta, remote RemoteChange, deviceID string) Decision {
	if local == nil {
		return DecisionApplyRemote
	}
	if remote.Revision <= local.RemoteVersion {
		return DecisionSkip
	}
	if !local.PendingSync {
		return DecisionApplyRemote
	}

	if remote.DeviceID == deviceID {
		switch {
		case remote.SyncVersion == local.SyncVersion:
			return DecisionAckEcho
		case remote.SyncVersion < local.SyncVersion:
			return DecisionKeepLocal
		}
	}

	switch {
	case local.ModifyDate.After(remote.ModifyDate):
		return DecisionKeepLocal
	case local.ModifyDate.Before(remote.ModifyDate):
		return DecisionApplyRemote
	case local.DeviceID > remote.DeviceID:
		return DecisionKeepLocal
	}
	return DecisionApplyRemote
}

// ReconcileTombstone decides what to do with a remote deletion. Deletions
// apply whether or not the entity has pending changes, unless it was
// modified strictly after the deletion time.
func ReconcileTombstone(local *models.Meta, tomb RemoteDeletion) Decision {
	if local == nil || tomb.Revision <= local.RemoteVersion {
		return DecisionSkip
	}
	if local.Deleted && !local.PendingSync {
		return DecisionSkip
	}
	if !local.Deleted && local.ModifyDate.After(tomb.DeletedAt) {
		return DecisionResurrect
	}
	return DecisionDeleteLocal
}
