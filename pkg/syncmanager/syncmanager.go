package syncmanager

import (
	"sync"
	"time"
)

// State is a SyncManager's synchronization state (spec §4.5 "State
// machine").
type State int

const (
	StateUnsynced State = iota
	StateSyncing
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Manager owns the jitter buffer, clock mapping, and drift estimate for
// one peer's one media kind (spec §3.5 "Per SyncManager").
type Manager struct {
	kind   MediaKind
	buffer *JitterBuffer
	clock  *ClockMap
	drift  *DriftEstimator

	mu      sync.Mutex
	state   State
	seenAny bool
}

// New constructs a Manager for kind, with the given jitter-buffer target
// delay and hard capacity.
func New(kind MediaKind, targetDelay time.Duration, hardMax int) *Manager {
	rate := kind.clockRateHz()
	return &Manager{
		kind:   kind,
		buffer: NewJitterBuffer(targetDelay, hardMax),
		clock:  NewClockMap(rate),
		drift:  NewDriftEstimator(rate),
		state:  StateUnsynced,
	}
}

// OnRTP admits an arriving frame into the jitter buffer and updates the
// drift estimator. The first frame observed moves the state machine from
// Unsynced to Syncing.
func (m *Manager) OnRTP(f Frame, now time.Time) error {
	m.mu.Lock()
	if !m.seenAny {
		m.seenAny = true
		if m.state == StateUnsynced {
			m.state = StateSyncing
		}
	}
	m.mu.Unlock()

	m.drift.Observe(f.RTPTimestamp, f.Arrival)
	return m.buffer.Insert(f, now)
}

// OnSenderReport records a new RTCP Sender Report mapping and moves a
// Syncing manager to Synced. The move does not depend on the drift
// estimate: the first valid report after the first RTP frame is enough. A
// report with NTP=0 is rejected and left out of the clock map entirely;
// the state machine does not advance.
func (m *Manager) OnSenderReport(ntpUs int64, rtpTs uint32) error {
	if err := m.clock.UpdateFromSenderReport(ntpUs, rtpTs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateSyncing {
		m.state = StateSynced
	}
	return nil
}

// Pop returns the next eligible frame, translated to a wall-clock
// timestamp and sync confidence, applying any standing drift correction.
func (m *Manager) Pop(now time.Time) (f Frame, wallUs int64, confidence float64, ok bool) {
	f, ok = m.buffer.Pop(now)
	if !ok {
		return Frame{}, 0, 0, false
	}

	if ppm, action, estOK := m.drift.Estimate(); estOK && action == DriftAdjust {
		m.clock.SetCorrection(m.drift.CorrectionFactor(ppm))
	}

	wallUs, confidence = m.clock.ToWallClock(f.RTPTimestamp, f.Arrival)
	return f, wallUs, confidence, true
}

// State returns the manager's current synchronization state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats reports the underlying jitter buffer's overrun and late-discard
// counters.
func (m *Manager) Stats() (overruns, lateDiscards uint64) {
	return m.buffer.Stats()
}

// AVAligner decides whether video runs ahead of audio by more than a
// threshold, from audio and video wall-clock times that the caller
// supplies. ShouldHoldVideo does not read the Audio and Video managers or
// their jitter buffers.
type AVAligner struct {
	Audio     *Manager
	Video     *Manager
	Threshold time.Duration // default 20ms
}

// NewAVAligner constructs an aligner over an audio and video Manager pair.
func NewAVAligner(audio, video *Manager, threshold time.Duration) *AVAligner {
	if threshold <= 0 {
		threshold = 20 * time.Millisecond
	}
	return &AVAligner{Audio: audio, Video: video, Threshold: threshold}
}

// ShouldHoldVideo reports whether the video frame at videoWallUs should be
// held back because it runs ahead of the audio head by more than the
// configured threshold, given the current audio head's wall-clock time.
func (a *AVAligner) ShouldHoldVideo(audioWallUs, videoWallUs int64) (holdMs int64, hold bool) {
	offsetUs := videoWallUs - audioWallUs
	thresholdUs := a.Threshold.Microseconds()
	if offsetUs > thresholdUs {
		return offsetUs / 1000, true
	}
	return offsetUs / 1000, false
}
