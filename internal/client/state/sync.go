// Package state holds the observable cells the device UI binds to. Each
// cell is a reactive.Value; writers are the sync core and screen logic.
package state

import (
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/reactive"
)

// SyncStatus is the coarse state of the sync engine.
type SyncStatus int

const (
	StatusIdle SyncStatus = iota
	StatusRunning
	StatusFailed
)

func (s SyncStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	}
	return "idle"
}

// SyncState publishes sync progress.
type SyncState struct {
	Status *reactive.Value[SyncStatus]
	// Pending is the number of entities awaiting a mirror acknowledgement.
	Pending *reactive.Value[int]
	// LastError delivers each failure once, to one reader.
	LastError *reactive.Value[error]
	// LastSync is the completion time of the last successful pass.
	LastSync *reactive.Value[time.Time]
}

func NewSyncState() *SyncState {
	return &SyncState{
		Status:  reactive.New(reactive.WithID[SyncStatus]("sync_status"), reactive.WithInitial(StatusIdle)),
		Pending: reactive.New(reactive.WithID[int]("sync_pending"), reactive.WithInitial(0)),
		LastError: reactive.New(
			reactive.WithID[error]("sync_last_error"),
			reactive.WithMode[error](reactive.SingleConsumer),
			reactive.WithEqual(func(a, b error) bool { return a == b }),
		),
		LastSync: reactive.New(
			reactive.WithID[time.Time]("sync_last_time"),
			reactive.WithEqual(func(a, b time.Time) bool { return a.Equal(b) }),
		),
	}
}

// Begin marks a pass as started.
func (s *SyncState) Begin() {
	s.Status.SetValue(StatusRunning, false)
}

// Finish records the outcome of a pass.
func (s *SyncState) Finish(pending int, err error, at time.Time) {
	s.Pending.SetValue(pending, false)
	if err != nil {
		s.LastError.SetValue(err, true)
		s.Status.SetValue(StatusFailed, false)
		return
	}
	s.LastSync.SetValue(at, false)
	s.Status.SetValue(StatusIdle, false)
}

// HasPending reports whether local changes are still unsynchronized.
func (s *SyncState) HasPending() bool {
	n, _ := s.Pending.GetValue()
	return n > 0
}

func (s *SyncState) Close() {
	s.Status.Close()
	s.Pending.Close()
	s.LastError.Close()
	s.LastSync.Close()
}
