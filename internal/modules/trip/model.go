// README: Trip aggregate published by a driver, with status flow and progress.
package trip

import (
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Trip struct {
	ID                    types.ID      `json:"id"`
	DriverID              types.ID      `json:"driver_id"`
	Origin                types.Point   `json:"origin"`
	Destination           types.Point   `json:"destination"`
	DepartureTime         time.Time     `json:"departure_time"`
	Capacity              int           `json:"capacity"`
	PricePerSeat          types.Money   `json:"price_per_seat"`
	Status                Status        `json:"status"`
	StatusVersion         int           `json:"status_version"`
	Progress              *int          `json:"progress,omitempty"`
	PlannedDistanceMeters int           `json:"planned_distance_meters"`
	PlannedDuration       time.Duration `json:"planned_duration"`
	RequestID             *types.ID     `json:"request_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	StartedAt             *time.Time    `json:"started_at,omitempty"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
	CancelledAt           *time.Time    `json:"cancelled_at,omitempty"`
}

type Event struct {
	ID         int64
	TripID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions is the trip state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusUpcoming: {StatusOngoing, StatusCancelled},
	StatusOngoing:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether the trip still accepts changes from riders or the driver.
func (t *Trip) Active() bool {
	return t.Status == StatusUpcoming || t.Status == StatusOngoing
}
