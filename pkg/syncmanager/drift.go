package syncmanager

import (
	"sync"
	"time"
)

// DriftAction is the recommended response to an observed clock-drift
// estimate (spec §4.5 "Clock-drift estimator").
type DriftAction int

const (
	DriftNone DriftAction = iota
	DriftMonitor
	DriftAdjust
	DriftInvestigate
)

func (a DriftAction) String() string {
	switch a {
	case DriftNone:
		return "none"
	case DriftMonitor:
		return "monitor"
	case DriftAdjust:
		return "adjust"
	case DriftInvestigate:
		return "investigate"
	default:
		return "unknown"
	}
}

const (
	minDriftSamples       = 10
	driftMonitorPPM       = 100.0
	driftAdjustPPM        = 500.0
	driftInvestigatePPM   = 5000.0
	maxCorrectionStep     = 0.01  // ±1% per application (spec §4.5)
	minCorrectionFactor   = 0.99
	maxCorrectionFactor   = 1.01
)

type driftSample struct {
	rtpTs   uint32
	arrival time.Time
}

// DriftEstimator tracks (rtp_ts, arrival_instant) pairs and derives a
// parts-per-million clock-drift estimate against wall-clock time (spec
// §4.5).
type DriftEstimator struct {
	clockRateHz uint32

	mu          sync.Mutex
	first       *driftSample
	last        *driftSample
	sampleCount int
	correction  float64
}

// NewDriftEstimator constructs an estimator for the given RTP clock rate.
func NewDriftEstimator(clockRateHz uint32) *DriftEstimator {
	return &DriftEstimator{clockRateHz: clockRateHz, correction: 1.0}
}

// Observe records one (rtp_ts, arrival) sample.
func (d *DriftEstimator) Observe(rtpTs uint32, arrival time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := driftSample{rtpTs: rtpTs, arrival: arrival}
	if d.first == nil {
		d.first = &s
	}
	d.last = &s
	d.sampleCount++
}

// Estimate computes the current drift in ppm and the recommended action.
// ok is false until at least 10 samples have been observed (spec §4.5
// "Minimum 10 samples required before producing an estimate").
func (d *DriftEstimator) Estimate() (ppm float64, action DriftAction, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampleCount < minDriftSamples || d.first == nil || d.last == nil {
		return 0, DriftNone, false
	}

	elapsedWall := d.last.arrival.Sub(d.first.arrival).Seconds()
	if elapsedWall <= 0 {
		return 0, DriftNone, false
	}
	elapsedRTP := float64(tsDistance(d.last.rtpTs, d.first.rtpTs)) / float64(d.clockRateHz)

	ppm = ((elapsedRTP - elapsedWall) / elapsedWall) * 1e6
	abs := ppm
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs > driftInvestigatePPM:
		action = DriftInvestigate
	case abs > driftAdjustPPM:
		action = DriftAdjust
	case abs > driftMonitorPPM:
		action = DriftMonitor
	default:
		action = DriftNone
	}
	return ppm, action, true
}

// CorrectionFactor returns the next multiplicative correction factor to
// apply to a ClockMap, derived from ppm and clamped to [0.99, 1.01] with a
// step limited to ±1% from the previous factor per application (spec
// §4.5: "transitions are limited to ±1% per application").
func (d *DriftEstimator) CorrectionFactor(ppm float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	target := 1.0 - ppm/1e6
	if target < minCorrectionFactor {
		target = minCorrectionFactor
	}
	if target > maxCorrectionFactor {
		target = maxCorrectionFactor
	}

	delta := target - d.correction
	if delta > maxCorrectionStep {
		delta = maxCorrectionStep
	}
	if delta < -maxCorrectionStep {
		delta = -maxCorrectionStep
	}
	d.correction += delta
	return d.correction
}
