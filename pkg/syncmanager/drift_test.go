package syncmanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/syncmanager"
)

func TestDriftEstimatorRequiresMinimumSamples(t *testing.T) {
	d := syncmanager.NewDriftEstimator(syncmanager.VideoClockRateHz)
	now := time.Now()
	for i := 0; i < 9; i++ {
		d.Observe(uint32(i*3000), now.Add(time.Duration(i)*33*time.Millisecond))
	}
	_, _, ok := d.Estimate()
	require.False(t, ok)

	d.Observe(uint32(9*3000), now.Add(9*33*time.Millisecond))
	_, _, ok = d.Estimate()
	require.True(t, ok)
}

func TestDriftEstimatorNoDriftWhenClocksAgree(t *testing.T) {
	d := syncmanager.NewDriftEstimator(syncmanager.VideoClockRateHz)
	now := time.Now()
	for i := 0; i < 11; i++ {
		rtp := uint32(i) * (syncmanager.VideoClockRateHz / 30)
		d.Observe(rtp, now.Add(time.Duration(i)*(time.Second/30)))
	}
	ppm, action, ok := d.Estimate()
	require.True(t, ok)
	require.InDelta(t, 0, ppm, 5)
	require.Equal(t, syncmanager.DriftNone, action)
}

func TestDriftEstimatorCorrectionFactorStepLimited(t *testing.T) {
	d := syncmanager.NewDriftEstimator(syncmanager.AudioClockRateHz)
	f1 := d.CorrectionFactor(20000) // target far below the 0.99 floor
	require.InDelta(t, 0.99, f1, 1e-9)

	f2 := d.CorrectionFactor(20000)
	require.InDelta(t, 0.99, f2, 1e-9)
}
