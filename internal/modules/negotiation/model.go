// README: Trip request and driver offer aggregates with their status flows.
package negotiation

import (
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type RequestStatus string

const (
	RequestNone           RequestStatus = "none"
	RequestPending        RequestStatus = "pending"
	RequestOffersReceived RequestStatus = "offers_received"
	RequestDriverSelected RequestStatus = "driver_selected"
	RequestCancelled      RequestStatus = "cancelled"
	RequestExpired        RequestStatus = "expired"
)

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
)

type TripRequest struct {
	ID              types.ID      `json:"id"`
	RiderID         types.ID      `json:"rider_id"`
	WindowStart     time.Time     `json:"window_start"`
	WindowEnd       time.Time     `json:"window_end"`
	Seats           int           `json:"seats"`
	PriceCeiling    *types.Money  `json:"price_ceiling,omitempty"`
	Origin          types.Point   `json:"origin"`
	Destination     types.Point   `json:"destination"`
	Status          RequestStatus `json:"status"`
	StatusVersion   int           `json:"status_version"`
	AcceptedOfferID *types.ID     `json:"accepted_offer_id,omitempty"`
	TripID          *types.ID     `json:"trip_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
}

type DriverOffer struct {
	ID           types.ID    `json:"id"`
	RequestID    types.ID    `json:"request_id"`
	DriverID     types.ID    `json:"driver_id"`
	ProposedTime time.Time   `json:"proposed_time"`
	PricePerSeat types.Money `json:"price_per_seat"`
	Seats        int         `json:"seats"`
	Vehicle      *string     `json:"vehicle,omitempty"`
	Status       OfferStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	RespondedAt  *time.Time  `json:"responded_at,omitempty"`
}

// RequestEvent records request transitions and offer actions against a request.
type RequestEvent struct {
	ID         int64
	RequestID  types.ID
	OfferID    *types.ID
	FromStatus RequestStatus
	ToStatus   RequestStatus
	Action     string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the request state flow as code.
var AllowedTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:        {RequestOffersReceived, RequestCancelled, RequestExpired},
	RequestOffersReceived: {RequestDriverSelected, RequestCancelled, RequestExpired},
}

func CanTransition(from, to RequestStatus) bool {
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

// Open requests still accept offers and can be cancelled by their owner.
func (r *TripRequest) Open() bool {
	return r.Status == RequestPending || r.Status == RequestOffersReceived
}

// InWindow reports whether t lies in [WindowStart, WindowEnd].
func (r *TripRequest) InWindow(t time.Time) bool {
	return !t.Before(r.WindowStart) && !t.After(r.WindowEnd)
}
