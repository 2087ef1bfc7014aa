package tracking

import (
	"testing"
	"time"
)

func TestHeadingBelowDeadbandNeverChanges(t *testing.T) {
	var h HeadingSmoother
	start := h.Update(90, 10)
	for _, raw := range []float64{92, 85, 97.9, 82.5, 90, 98, 82} {
		if got := h.Update(raw, 10); got != start {
			t.Fatalf("raw %.1f moved heading to %.2f", raw, got)
		}
	}
}

func TestHeadingBlendsRealTurns(t *testing.T) {
	var h HeadingSmoother
	h.Update(350, 10)
	got := h.Update(30, 10)
	// delta is +40 across north, blended by 0.35
	if want := 4.0; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected %.2f, got %.4f", want, got)
	}
}

func TestHeadingIgnoredAtLowSpeed(t *testing.T) {
	var h HeadingSmoother
	h.Update(180, 5)
	if got := h.Update(270, 1.0); got != 180 {
		t.Fatalf("slow fixes must not steer the heading, got %.2f", got)
	}
	var fresh HeadingSmoother
	if got := fresh.Update(45, 0.5); got != 0 {
		t.Fatalf("no heading before the first fast fix, got %.2f", got)
	}
}

func TestThrottle(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	th := NewThrottle(5 * time.Second)
	if !th.Allow(base) {
		t.Fatalf("first event must fire")
	}
	if th.Allow(base.Add(4 * time.Second)) {
		t.Fatalf("event inside the interval must not fire")
	}
	if !th.Allow(base.Add(5 * time.Second)) {
		t.Fatalf("event at the interval must fire")
	}
	th.Reset()
	if !th.Allow(base.Add(6 * time.Second)) {
		t.Fatalf("reset throttle must fire immediately")
	}
}
