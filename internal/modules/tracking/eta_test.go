package tracking

import (
	"testing"
	"time"
)

func TestRemainingETAUsesRemainingSteps(t *testing.T) {
	r := &Route{
		Available: true,
		Steps: []Step{
			{DistanceMeters: 1000, Duration: 100 * time.Second, End: gombe},
			{DistanceMeters: 1000, Duration: 200 * time.Second, End: matonge},
			{DistanceMeters: 1000, Duration: 300 * time.Second, End: limete},
		},
	}
	eta, ok := RemainingETA(r, 1, matonge)
	if !ok {
		t.Fatalf("expected an ETA")
	}
	if eta != 300*time.Second {
		t.Fatalf("at the end of step 1 only step 2 remains, got %v", eta)
	}
	if eta, _ := RemainingETA(r, 3, limete); eta != 0 {
		t.Fatalf("past the last step the ETA is zero, got %v", eta)
	}
}

func TestFallbackETAScalesByProgress(t *testing.T) {
	tr := testTrip()
	tr.PlannedDuration = 20 * time.Minute
	if got := FallbackETA(tr, 25); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %v", got)
	}
	if got := FallbackETA(tr, 140); got != 0 {
		t.Fatalf("progress is clamped, got %v", got)
	}
	if p := Progress(tr, tr.Origin); p != 0 {
		t.Fatalf("expected 0 at origin, got %d", p)
	}
	if p := Progress(tr, tr.Destination); p != 100 {
		t.Fatalf("expected 100 at destination, got %d", p)
	}
}
