// README: Booking aggregate (seats on a trip) with independent pickup/drop-off confirmations.
package booking

import (
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Actor identifies who confirmed a pickup or drop-off.
type Actor string

const (
	ActorDriver Actor = "driver"
	ActorRider  Actor = "rider"
)

// Booking is one rider's seat reservation on a trip. Pickup and Dropoff
// override the trip origin/destination for this rider.
type Booking struct {
	ID              types.ID     `json:"id"`
	TripID          types.ID     `json:"trip_id"`
	RiderID         types.ID     `json:"rider_id"`
	Seats           int          `json:"seats"`
	Status          Status       `json:"status"`
	StatusVersion   int          `json:"status_version"`
	RejectReason    *string      `json:"reject_reason,omitempty"`
	Pickup          *types.Point `json:"pickup,omitempty"`
	Dropoff         *types.Point `json:"dropoff,omitempty"`
	DriverPickupAt  *time.Time   `json:"driver_pickup_at,omitempty"`
	RiderPickupAt   *time.Time   `json:"rider_pickup_at,omitempty"`
	DriverDropoffAt *time.Time   `json:"driver_dropoff_at,omitempty"`
	RiderDropoffAt  *time.Time   `json:"rider_dropoff_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	DecidedAt       *time.Time   `json:"decided_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	Action     string
	ActorID    *types.ID
	CreatedAt  time.Time
}

var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusCancelled, StatusCompleted},
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

// Active bookings hold (or may hold) seats on the trip.
func (b *Booking) Active() bool {
	return b.Status == StatusPending || b.Status == StatusAccepted
}

func (b *Booking) PickedUp() bool {
	return b.DriverPickupAt != nil || b.RiderPickupAt != nil
}

func (b *Booking) DroppedOff() bool {
	return b.DriverDropoffAt != nil || b.RiderDropoffAt != nil
}

// PickupConfirmed returns the flag set by the given actor.
func (b *Booking) PickupConfirmed(by Actor) bool {
	if by == ActorDriver {
		return b.DriverPickupAt != nil
	}
	return b.RiderPickupAt != nil
}

func (b *Booking) DropoffConfirmed(by Actor) bool {
	if by == ActorDriver {
		return b.DriverDropoffAt != nil
	}
	return b.RiderDropoffAt != nil
}
