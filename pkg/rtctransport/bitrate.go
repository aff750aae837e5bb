package rtctransport

import "sync"

// lossAdaptThreshold is the fraction-lost percentage at or above which the
// controller halves bitrate toward the configured minimum (spec §4.6
// "bitrate adaptive on packet loss (≥5% loss halves bitrate toward
// configured minimum)").
const lossAdaptThreshold = 5.0

// bitrateController tracks one peer's target video bitrate, halving it
// on each reported loss at or above the threshold and never dropping
// below the configured minimum.
type bitrateController struct {
	enabled bool

	mu      sync.Mutex
	current uint32
	min     uint32
}

func newBitrateController(targetKbps, minKbps uint32, enabled bool) *bitrateController {
	if minKbps == 0 {
		minKbps = 64
	}
	if targetKbps < minKbps {
		targetKbps = minKbps
	}
	return &bitrateController{enabled: enabled, current: targetKbps, min: minKbps}
}

// onLoss applies the adaptation rule for an observed loss percentage.
func (b *bitrateController) onLoss(lossPct float64) {
	if !b.enabled || lossPct < lossAdaptThreshold {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.current / 2
	if next < b.min {
		next = b.min
	}
	b.current = next
}

// Current returns the controller's current target bitrate in kbps.
func (b *bitrateController) Current() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
