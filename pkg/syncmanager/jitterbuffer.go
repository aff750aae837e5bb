package syncmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// Kind errors for the synchronization subsystem (spec §7 "Synchronization"
// taxonomy).
const (
	KindBufferOverflow rterr.Kind = "sync.jitter_buffer_overflow"
	KindLatePacket     rterr.Kind = "sync.late_packet_discarded"
)

const (
	minTargetDelay = 50 * time.Millisecond
	maxTargetDelay = 200 * time.Millisecond
	lateThreshold  = 200 * time.Millisecond
)

// JitterBuffer reorders frames by RTP sequence, holding each one for a
// target delay before it becomes eligible for pop (spec §4.5 "Jitter
// buffer").
type JitterBuffer struct {
	targetDelay time.Duration
	hardMax     int

	mu      sync.Mutex
	frames  []Frame
	anchor  uint16
	hasAny  bool
	lastPop uint16
	hasPop  bool

	overrunCount     uint64
	lateDiscardCount uint64
}

// NewJitterBuffer constructs a buffer with targetDelay clamped to
// [50ms, 200ms] and the given hard capacity (spec §4.5 "Target delay").
func NewJitterBuffer(targetDelay time.Duration, hardMax int) *JitterBuffer {
	if targetDelay < minTargetDelay {
		targetDelay = minTargetDelay
	}
	if targetDelay > maxTargetDelay {
		targetDelay = maxTargetDelay
	}
	if hardMax < 1 {
		hardMax = 1
	}
	return &JitterBuffer{targetDelay: targetDelay, hardMax: hardMax}
}

// Insert adds a frame in sequence order, discarding it if it is a late
// packet relative to the last popped frame, and evicting the oldest
// buffered frame on overflow (spec §4.5 "Late packets", "On overflow").
func (b *JitterBuffer) Insert(f Frame, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasAny {
		b.anchor = f.Sequence
		b.hasAny = true
	}

	if b.hasPop && seqDistance(f.Sequence, b.lastPop) <= 0 {
		if now.Sub(f.Arrival) > lateThreshold {
			b.lateDiscardCount++
			return rterr.New(KindLatePacket, "frame arrived after its expected pop window")
		}
	}

	if len(b.frames) >= b.hardMax {
		b.evictOldestLocked()
	}

	idx := sort.Search(len(b.frames), func(i int) bool {
		return seqDistance(b.frames[i].Sequence, b.anchor) > seqDistance(f.Sequence, b.anchor)
	})
	b.frames = append(b.frames, Frame{})
	copy(b.frames[idx+1:], b.frames[idx:])
	b.frames[idx] = f
	return nil
}

func (b *JitterBuffer) evictOldestLocked() {
	if len(b.frames) == 0 {
		return
	}
	b.frames = b.frames[1:]
	b.overrunCount++
}

// Pop returns the earliest-sequence frame once it has sat in the buffer
// for at least targetDelay, signalling eligibility (spec §4.5 "Pop
// policy"). Returns ok=false if nothing is yet eligible.
func (b *JitterBuffer) Pop(now time.Time) (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return Frame{}, false
	}
	head := b.frames[0]
	if now.Sub(head.Arrival) < b.targetDelay {
		return Frame{}, false
	}
	b.frames = b.frames[1:]
	b.lastPop = head.Sequence
	b.hasPop = true
	return head, true
}

// Len reports the number of frames currently buffered.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Stats reports the overrun and late-discard counters.
func (b *JitterBuffer) Stats() (overruns, lateDiscards uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overrunCount, b.lateDiscardCount
}
