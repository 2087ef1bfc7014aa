// README: Domain event envelope and the publisher contract shared by the dispatch modules.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/observability"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// Event types double as AMQP routing keys.
const (
	RequestCreated   = "request.created"
	RequestCancelled = "request.cancelled"
	RequestExpired   = "request.expired"
	RequestNearby    = "request.nearby"
	OfferSubmitted   = "offer.submitted"
	OfferAccepted    = "offer.accepted"
	OfferRejected    = "offer.rejected"
	OfferWithdrawn   = "offer.withdrawn"

	TripCreated   = "trip.created"
	TripStarted   = "trip.started"
	TripCompleted = "trip.completed"
	TripCancelled = "trip.cancelled"

	BookingCreated    = "booking.created"
	BookingAccepted   = "booking.accepted"
	BookingRejected   = "booking.rejected"
	BookingCancelled  = "booking.cancelled"
	BookingPickedUp   = "booking.picked_up"
	BookingDroppedOff = "booking.dropped_off"
)

type Event struct {
	Type       string            `json:"type"`
	Subject    types.ID          `json:"subject"`
	Recipients []types.ID        `json:"recipients,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify publishes best-effort: a failed publish is logged and never reaches the caller.
func Notify(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		observability.DomainEvents.WithLabelValues("all", "error").Inc()
		slog.WarnContext(ctx, "publish domain event failed", "type", e.Type, "subject", e.Subject, "error", err)
		return
	}
	observability.DomainEvents.WithLabelValues("all", "ok").Inc()
}
