package syncmanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/syncmanager"
)

func TestManagerStateTransitionsUnsyncedToSyncedOnSenderReport(t *testing.T) {
	m := syncmanager.New(syncmanager.KindVideo, 50*time.Millisecond, 32)
	require.Equal(t, syncmanager.StateUnsynced, m.State())

	now := time.Now()
	require.NoError(t, m.OnRTP(syncmanager.Frame{Sequence: 0, RTPTimestamp: 0, Arrival: now}, now))
	require.Equal(t, syncmanager.StateSyncing, m.State())

	require.NoError(t, m.OnSenderReport(now.UnixMicro(), 0))
	require.Equal(t, syncmanager.StateSynced, m.State())
}

func TestManagerRejectsZeroNTPSenderReportAndStaysSyncing(t *testing.T) {
	m := syncmanager.New(syncmanager.KindVideo, 50*time.Millisecond, 32)
	now := time.Now()
	require.NoError(t, m.OnRTP(syncmanager.Frame{Sequence: 0, RTPTimestamp: 0, Arrival: now}, now))
	require.Equal(t, syncmanager.StateSyncing, m.State())

	err := m.OnSenderReport(0, 0)
	require.Error(t, err)
	require.Equal(t, syncmanager.StateSyncing, m.State())
}

func TestManagerPopTranslatesToWallClock(t *testing.T) {
	m := syncmanager.New(syncmanager.KindAudio, 50*time.Millisecond, 32)
	now := time.Now()

	require.NoError(t, m.OnRTP(syncmanager.Frame{Sequence: 1, RTPTimestamp: 100, Arrival: now}, now))
	f, _, confidence, ok := m.Pop(now.Add(100 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, uint16(1), f.Sequence)
	require.Equal(t, 0.5, confidence) // no Sender Report observed yet
}

func TestAVAlignerHoldsVideoAheadOfAudio(t *testing.T) {
	aligner := syncmanager.NewAVAligner(nil, nil, 20*time.Millisecond)
	holdMs, hold := aligner.ShouldHoldVideo(1_000_000, 1_050_000)
	require.True(t, hold)
	require.Equal(t, int64(50), holdMs)

	_, hold = aligner.ShouldHoldVideo(1_000_000, 1_005_000)
	require.False(t, hold)
}
