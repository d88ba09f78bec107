package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_AcquireAndRelease(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	release, ok, err := m.Acquire(ctx, "mre:root-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, release)

	_, ok, err = m.Acquire(ctx, "mre:root-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	release()

	_, ok, err = m.Acquire(ctx, "mre:root-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_ExpiredEntryCanBeReacquired(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "mre:root-2", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	_, ok, err = m.Acquire(ctx, "mre:root-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_ReaperRemovesExpiredEntries(t *testing.T) {
	m := NewMemory(2 * time.Millisecond)
	defer m.Stop()
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "mre:root-3", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	m.mu.Lock()
	_, held := m.entries["mre:root-3"]
	m.mu.Unlock()
	require.False(t, held)
}

func TestMemory_IndependentKeysDoNotContend(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, ok1, err := m.Acquire(ctx, "mre:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok1)

	_, ok2, err := m.Acquire(ctx, "mre:b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok2)
}
