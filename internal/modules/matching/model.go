// README: Open-request discovery: request origins and available drivers indexed by location.
package matching

import "time"

const (
	// notifyInitialCount is the number of drivers to notify on the first dispatch.
	notifyInitialCount = 5
	// selectPoolSize is how many nearby drivers to sample before picking notifyInitialCount.
	selectPoolSize = 10
	// broadcastDelay is how long to wait after initial dispatch before opening the
	// request to every driver in the wider radius.
	broadcastDelay = 30 * time.Second
	// windowLead opens a request to everyone when its window starts this soon.
	windowLead = time.Hour
	// broadcastExtraCount is how many additional drivers to notify on broadcast.
	broadcastExtraCount = 10
	// broadcastRadiusFactor widens the search radius for the broadcast.
	broadcastRadiusFactor = 2
	// openRequestScan bounds how many open requests one tick inspects.
	openRequestScan = 200
)

type NearbyRequest struct {
	ID             string  `json:"id"`
	DistanceMeters float64 `json:"distance_m"`
}
