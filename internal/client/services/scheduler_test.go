package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
	ran   chan struct{}
}

func (s *countingSyncer) SyncAll(context.Context) ([]*Result, error) {
	s.calls.Add(1)
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return nil, s.err
}

func TestScheduler_RunsImmediatelyAndOnTrigger(t *testing.T) {
	syncer := &countingSyncer{ran: make(chan struct{}, 1)}
	s := NewScheduler(syncer, time.Hour, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitRun(t, syncer.ran)
	s.Trigger()
	waitRun(t, syncer.ran)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.EqualValues(t, 2, syncer.calls.Load())
}

func TestScheduler_TicksAndSurvivesFailures(t *testing.T) {
	syncer := &countingSyncer{ran: make(chan struct{}, 1), err: common.ErrNetworkUnavailable}
	s := NewScheduler(syncer, 5*time.Millisecond, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	for range 3 {
		waitRun(t, syncer.ran)
	}
	assert.GreaterOrEqual(t, syncer.calls.Load(), int32(3))
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	s := NewScheduler(&countingSyncer{}, time.Hour, logging.Nop())
	s.Trigger()
	s.Trigger()
	assert.Len(t, s.trigger, 1)
}

func waitRun(t *testing.T, ran <-chan struct{}) {
	t.Helper()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("sync pass did not run")
	}
}
