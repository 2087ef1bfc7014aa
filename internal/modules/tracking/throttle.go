package tracking

import "time"

// Throttle fires at most once per interval of the caller's clock. It keeps no
// timers; each event carries its own time.
type Throttle struct {
	interval time.Duration
	last     time.Time
	fired    bool
}

func NewThrottle(interval time.Duration) Throttle {
	return Throttle{interval: interval}
}

func (t *Throttle) Allow(now time.Time) bool {
	if t.fired && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.fired = true
	return true
}

func (t *Throttle) Reset() {
	t.last = time.Time{}
	t.fired = false
}
