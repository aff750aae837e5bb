package syncmanager_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/syncmanager"
)

func TestClockMapFallsBackBeforeSenderReport(t *testing.T) {
	cm := syncmanager.NewClockMap(syncmanager.VideoClockRateHz)
	now := time.Now()
	wallUs, confidence := cm.ToWallClock(12345, now)
	require.Equal(t, now.UnixMicro(), wallUs)
	require.Equal(t, 0.5, confidence)
}

func TestClockMapConvertsAfterSenderReport(t *testing.T) {
	cm := syncmanager.NewClockMap(syncmanager.VideoClockRateHz)
	require.NoError(t, cm.UpdateFromSenderReport(1_000_000, 90000))

	// 90000 ticks after the SR's RTP base is one second at the 90 kHz video
	// clock, so exactly 1s later.
	wallUs, confidence := cm.ToWallClock(180000, time.Now())
	require.Equal(t, 1.0, confidence)
	require.Equal(t, int64(2_000_000), wallUs)
}

func TestClockMapRejectsZeroNTPSenderReport(t *testing.T) {
	cm := syncmanager.NewClockMap(syncmanager.VideoClockRateHz)

	err := cm.UpdateFromSenderReport(0, 90000)
	require.Error(t, err)

	// The rejected report must not have been stored: conversion still
	// falls back to the pre-SR behavior.
	now := time.Now()
	wallUs, confidence := cm.ToWallClock(12345, now)
	require.Equal(t, now.UnixMicro(), wallUs)
	require.Equal(t, 0.5, confidence)
}

func TestClockMapRejectsZeroNTPAfterAPriorValidReport(t *testing.T) {
	cm := syncmanager.NewClockMap(syncmanager.VideoClockRateHz)
	require.NoError(t, cm.UpdateFromSenderReport(1_000_000, 90000))

	err := cm.UpdateFromSenderReport(0, 270000)
	require.Error(t, err)

	// The prior valid mapping must still be in effect.
	wallUs, confidence := cm.ToWallClock(180000, time.Now())
	require.Equal(t, 1.0, confidence)
	require.Equal(t, int64(2_000_000), wallUs)
}
