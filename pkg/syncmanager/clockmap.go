package syncmanager

import (
	"sync"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// KindInvalidSenderReport flags an RTCP Sender Report with NTP=0, which
// spec §4.5 requires be rejected rather than folded into the clock map.
const KindInvalidSenderReport rterr.Kind = "sync.invalid_sender_report"

// ClockMap converts RTP timestamps to absolute wall-clock microseconds
// using the most recent RTCP Sender Report (spec §4.5 "RTP↔wall-clock
// mapping").
type ClockMap struct {
	clockRateHz uint32

	mu         sync.Mutex
	hasSR      bool
	ntpBaseUs  int64
	rtpBase    uint32
	correction float64 // multiplicative drift correction, default 1.0
}

// NewClockMap constructs a ClockMap for the given RTP clock rate.
func NewClockMap(clockRateHz uint32) *ClockMap {
	return &ClockMap{clockRateHz: clockRateHz, correction: 1.0}
}

// UpdateFromSenderReport records the (ntp_us, rtp_ts) pair most recently
// observed in an RTCP Sender Report. An NTP value of zero marks a
// malformed or zero-filled report and is rejected; the prior mapping (or
// the no-SR-yet fallback) is left untouched (spec §4.5 "RTCP Sender
// Report with NTP=0 is rejected").
func (c *ClockMap) UpdateFromSenderReport(ntpUs int64, rtpTs uint32) error {
	if ntpUs == 0 {
		return rterr.New(KindInvalidSenderReport, "sender report ntp_us must not be zero")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ntpBaseUs = ntpUs
	c.rtpBase = rtpTs
	c.hasSR = true
	return nil
}

// SetCorrection applies a multiplicative drift-correction factor to
// future conversions (spec §4.5 "Correction is applied multiplicatively
// to the RTP→wall-clock conversion").
func (c *ClockMap) SetCorrection(factor float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correction = factor
}

// ToWallClock converts an RTP timestamp to wall-clock microseconds. If no
// Sender Report has yet been observed, it falls back to the frame's local
// arrival instant with sync_confidence 0.5; afterward, confidence is 1.0
// (spec §4.5).
func (c *ClockMap) ToWallClock(rtpTs uint32, arrival time.Time) (wallUs int64, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSR {
		return arrival.UnixMicro(), 0.5
	}

	diff := tsDistance(rtpTs, c.rtpBase)
	offsetUs := float64(diff) * 1_000_000 / float64(c.clockRateHz) * c.correction
	return c.ntpBaseUs + int64(offsetUs), 1.0
}
