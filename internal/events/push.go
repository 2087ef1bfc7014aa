package events

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

// Sender is the subset of the FCM client used for push delivery.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushPublisher delivers events to each recipient's device topic ("user_<id>").
type PushPublisher struct {
	sender Sender
}

func NewPushPublisher(sender Sender) *PushPublisher {
	return &PushPublisher{sender: sender}
}

var titles = map[string]string{
	OfferSubmitted:    "New offer on your request",
	OfferAccepted:     "Your offer was accepted",
	OfferRejected:     "Your offer was declined",
	RequestNearby:     "Ride request nearby",
	TripCreated:       "Your trip is confirmed",
	TripStarted:       "Your trip has started",
	TripCancelled:     "Trip cancelled",
	BookingCreated:    "New booking request",
	BookingAccepted:   "Booking accepted",
	BookingRejected:   "Booking declined",
	BookingCancelled:  "Booking cancelled",
	BookingPickedUp:   "Pickup confirmed",
	BookingDroppedOff: "Drop-off confirmed",
}

func (p *PushPublisher) Publish(ctx context.Context, e Event) error {
	if len(e.Recipients) == 0 {
		return nil
	}
	data := make(map[string]string, len(e.Data)+2)
	for k, v := range e.Data {
		data[k] = v
	}
	data["type"] = e.Type
	data["subject"] = string(e.Subject)

	var errs []error
	for _, rcpt := range e.Recipients {
		msg := &messaging.Message{
			Topic: UserTopic(string(rcpt)),
			Data:  data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		}
		if title, ok := titles[e.Type]; ok {
			msg.Notification = &messaging.Notification{Title: title}
		}
		if _, err := p.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("fcm send to %s: %w", rcpt, err))
		}
	}
	return errors.Join(errs...)
}

func UserTopic(userID string) string {
	return "user_" + userID
}
