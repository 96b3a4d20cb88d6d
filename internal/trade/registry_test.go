package trade

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryCreateAndLookup(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	s, err := r.Create("alice", "bob", time.Minute)
	require.NoError(t, err)

	byID, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, byID)

	for _, pid := range []string{"alice", "bob"} {
		found, ok := r.Find(pid)
		require.True(t, ok)
		assert.Same(t, s, found)
	}
}

func TestRegistryRejectsSelfSession(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, err := r.Create("alice", "alice", time.Minute)
	assert.ErrorIs(t, err, ErrSelfSession)
}

func TestRegistryEnforcesPerParticipantLock(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	s, err := r.Create("alice", "bob", time.Minute)
	require.NoError(t, err)

	_, err = r.Create("bob", "alice", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyActive)
	_, err = r.Create("alice", "carol", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	r.Remove(s.ID())
	// Idempotent remove.
	r.Remove(s.ID())

	_, err = r.Create("alice", "carol", time.Minute)
	assert.NoError(t, err)
}

func TestRegistryConcurrentCreateYieldsOneSuccess(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	const racers = 32
	var successes int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Create("alice", "bob", time.Minute); err == nil {
				atomic.AddInt32(&successes, 1)
			} else {
				assert.ErrorIs(t, err, ErrAlreadyActive)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Len(t, r.Sessions(), 1)
}
