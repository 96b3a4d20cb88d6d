package trade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSupervisorSweepCancelsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	logger := zap.NewNop()
	registry := NewRegistry(logger)
	emitter := &captureEmitter{}
	engine := NewEngine(logger, repo, registry, emitter, Options{SessionTTL: time.Millisecond})
	sv := NewSupervisor(logger, registry, engine, time.Hour)

	s, err := engine.Begin(ctx, "alice", "bob")
	require.NoError(t, err)

	// Before the deadline nothing happens.
	sv.Sweep(s.CreatedAt())
	assert.Equal(t, StateOpen, s.State())

	sv.Sweep(s.Deadline().Add(time.Millisecond))
	assert.Equal(t, StateCancelled, s.State())
	_, ok := registry.Get(s.ID())
	assert.False(t, ok)

	events := emitter.byType(EventCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, "timed out", events[0].Reason)
	assert.Empty(t, events[0].ParticipantID)

	// Sweeping again is a no-op.
	sv.Sweep(time.Now().Add(time.Hour))
	assert.Len(t, emitter.byType(EventCancelled), 1)
}

func TestSupervisorLeavesUnexpiredSessionsAlone(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	registry := NewRegistry(logger)
	engine := NewEngine(logger, newFakeRepo(), registry, nil, Options{SessionTTL: time.Hour})
	sv := NewSupervisor(logger, registry, engine, time.Hour)

	s, err := engine.Begin(ctx, "alice", "bob")
	require.NoError(t, err)

	sv.Sweep(time.Now())
	assert.Equal(t, StateOpen, s.State())
}

func TestSupervisorStartStop(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	registry := NewRegistry(logger)
	engine := NewEngine(logger, newFakeRepo(), registry, nil, Options{SessionTTL: time.Millisecond})
	sv := NewSupervisor(logger, registry, engine, time.Millisecond)

	s, err := engine.Begin(ctx, "alice", "bob")
	require.NoError(t, err)

	sv.Start()
	require.Eventually(t, func() bool {
		return s.State() == StateCancelled
	}, time.Second, time.Millisecond)
	sv.Stop()
}
