package syncmanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/syncmanager"
)

func TestJitterBufferOrdersOutOfOrderArrivals(t *testing.T) {
	buf := syncmanager.NewJitterBuffer(50*time.Millisecond, 32)
	base := time.Now().Add(-time.Second)

	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 2, Arrival: base}, base))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 0, Arrival: base}, base))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 1, Arrival: base}, base))

	now := base.Add(100 * time.Millisecond)
	f0, ok := buf.Pop(now)
	require.True(t, ok)
	require.Equal(t, uint16(0), f0.Sequence)

	f1, ok := buf.Pop(now)
	require.True(t, ok)
	require.Equal(t, uint16(1), f1.Sequence)

	f2, ok := buf.Pop(now)
	require.True(t, ok)
	require.Equal(t, uint16(2), f2.Sequence)
}

func TestJitterBufferHandlesSequenceWrap(t *testing.T) {
	buf := syncmanager.NewJitterBuffer(50*time.Millisecond, 32)
	base := time.Now().Add(-time.Second)

	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 65534, Arrival: base}, base))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 0, Arrival: base}, base))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 65535, Arrival: base}, base))

	now := base.Add(100 * time.Millisecond)
	order := []uint16{}
	for i := 0; i < 3; i++ {
		f, ok := buf.Pop(now)
		require.True(t, ok)
		order = append(order, f.Sequence)
	}
	require.Equal(t, []uint16{65534, 65535, 0}, order)
}

func TestJitterBufferNotEligibleBeforeTargetDelay(t *testing.T) {
	buf := syncmanager.NewJitterBuffer(100*time.Millisecond, 32)
	now := time.Now()
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 1, Arrival: now}, now))

	_, ok := buf.Pop(now.Add(10 * time.Millisecond))
	require.False(t, ok)

	_, ok = buf.Pop(now.Add(150 * time.Millisecond))
	require.True(t, ok)
}

func TestJitterBufferOverflowEvictsOldest(t *testing.T) {
	buf := syncmanager.NewJitterBuffer(50*time.Millisecond, 2)
	now := time.Now()

	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 0, Arrival: now}, now))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 1, Arrival: now}, now))
	require.NoError(t, buf.Insert(syncmanager.Frame{Sequence: 2, Arrival: now}, now))

	require.Equal(t, 2, buf.Len())
	overruns, _ := buf.Stats()
	require.Equal(t, uint64(1), overruns)
}
