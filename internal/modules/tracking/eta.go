package tracking

import (
	"math"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/geo"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// RemainingETA sums what is left of the route from the current step on. The
// route was requested from the vehicle position, so traffic already behind the
// vehicle never counts.
func RemainingETA(r *Route, stepIndex int, pos types.Point) (time.Duration, bool) {
	if r == nil || !r.Available {
		return 0, false
	}
	if len(r.Steps) == 0 {
		return r.Duration, true
	}
	if stepIndex >= len(r.Steps) {
		return 0, true
	}
	if stepIndex < 0 {
		stepIndex = 0
	}
	var eta time.Duration
	cur := r.Steps[stepIndex]
	if cur.DistanceMeters > 0 {
		frac := geo.DistanceMeters(pos, cur.End) / float64(cur.DistanceMeters)
		eta += time.Duration(math.Min(frac, 1) * float64(cur.Duration))
	} else {
		eta += cur.Duration
	}
	for _, s := range r.Steps[stepIndex+1:] {
		eta += s.Duration
	}
	return eta, true
}

// Progress estimates trip completion from the straight-line distance still to
// cover against the planned total.
func Progress(t *trip.Trip, pos types.Point) int {
	total := float64(t.PlannedDistanceMeters)
	if total <= 0 {
		total = geo.DistanceMeters(t.Origin, t.Destination)
	}
	if total <= 0 {
		return 100
	}
	remaining := geo.DistanceMeters(pos, t.Destination)
	return trip.ClampProgress(int(math.Round(100 * (1 - remaining/total))))
}

// FallbackETA scales the planned duration by the work left.
func FallbackETA(t *trip.Trip, progress int) time.Duration {
	progress = trip.ClampProgress(progress)
	return time.Duration(float64(t.PlannedDuration) * (1 - float64(progress)/100))
}
