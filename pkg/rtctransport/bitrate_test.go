package rtctransport

import "testing"

func TestBitrateControllerHalvesOnHighLoss(t *testing.T) {
	b := newBitrateController(2000, 150, true)
	b.onLoss(10.0)
	if got := b.Current(); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}

func TestBitrateControllerNeverGoesBelowMinimum(t *testing.T) {
	b := newBitrateController(200, 150, true)
	b.onLoss(10.0)
	if got := b.Current(); got != 150 {
		t.Fatalf("expected floor at 150, got %d", got)
	}
}

func TestBitrateControllerIgnoresLossBelowThreshold(t *testing.T) {
	b := newBitrateController(2000, 150, true)
	b.onLoss(1.0)
	if got := b.Current(); got != 2000 {
		t.Fatalf("expected unchanged 2000, got %d", got)
	}
}

func TestBitrateControllerDisabledIgnoresLoss(t *testing.T) {
	b := newBitrateController(2000, 150, false)
	b.onLoss(50.0)
	if got := b.Current(); got != 2000 {
		t.Fatalf("expected unchanged 2000 when disabled, got %d", got)
	}
}
