package tracking

import (
	"math"

	"github.com/GroupeBH/zwanga-sub000/internal/geo"
)

const (
	minHeadingSpeed = 1.5 // m/s; below this GPS headings are noise
	headingBlend    = 0.35
	headingDeadband = 8.0 // degrees
)

// HeadingSmoother filters GPS heading jitter while following real turns.
type HeadingSmoother struct {
	heading float64
	set     bool
}

// Update feeds one raw heading and returns the smoothed value.
func (h *HeadingSmoother) Update(raw, speed float64) float64 {
	if speed < minHeadingSpeed || math.IsNaN(raw) {
		return h.heading
	}
	if !h.set {
		h.heading = geo.NormalizeHeading(raw)
		h.set = true
		return h.heading
	}
	delta := geo.HeadingDelta(h.heading, raw)
	if math.Abs(delta) <= headingDeadband {
		return h.heading
	}
	h.heading = geo.NormalizeHeading(h.heading + headingBlend*delta)
	return h.heading
}

func (h *HeadingSmoother) Heading() float64 {
	return h.heading
}

func (h *HeadingSmoother) Reset() {
	*h = HeadingSmoother{}
}
