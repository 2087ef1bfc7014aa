package tracking

import (
	"sort"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
)

// DeriveWaypoints projects a trip's bookings into the ordered stop list: every
// pickup in booking creation order, then every drop-off in the same order.
// Only the driver's confirmations resolve a stop; a delivered rider counts as
// picked up even if the driver never confirmed the pickup.
func DeriveWaypoints(t *trip.Trip, bookings []*booking.Booking) []Waypoint {
	seated := make([]*booking.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == booking.StatusAccepted || b.Status == booking.StatusCompleted {
			seated = append(seated, b)
		}
	}
	sort.SliceStable(seated, func(i, j int) bool {
		if seated[i].CreatedAt.Equal(seated[j].CreatedAt) {
			return seated[i].ID < seated[j].ID
		}
		return seated[i].CreatedAt.Before(seated[j].CreatedAt)
	})

	out := make([]Waypoint, 0, 2*len(seated))
	for _, b := range seated {
		p := t.Origin
		if b.Pickup != nil {
			p = *b.Pickup
		}
		out = append(out, Waypoint{
			BookingID: b.ID,
			RiderID:   b.RiderID,
			Kind:      WaypointPickup,
			Point:     p,
			Resolved:  pickedUp(b),
			Active:    true,
		})
	}
	for _, b := range seated {
		p := t.Destination
		if b.Dropoff != nil {
			p = *b.Dropoff
		}
		out = append(out, Waypoint{
			BookingID: b.ID,
			RiderID:   b.RiderID,
			Kind:      WaypointDropoff,
			Point:     p,
			Resolved:  b.DriverDropoffAt != nil || b.Status == booking.StatusCompleted,
			Active:    pickedUp(b),
		})
	}
	return out
}

func pickedUp(b *booking.Booking) bool {
	return b.DriverPickupAt != nil || b.DriverDropoffAt != nil || b.Status == booking.StatusCompleted
}

// Current returns the first unresolved waypoint that is navigationally active.
func Current(wps []Waypoint) (Waypoint, bool) {
	for _, w := range wps {
		if w.Active && !w.Resolved {
			return w, true
		}
	}
	return Waypoint{}, false
}

// Unresolved keeps the route stops, in order.
func Unresolved(wps []Waypoint) []Waypoint {
	var out []Waypoint
	for _, w := range wps {
		if !w.Resolved {
			out = append(out, w)
		}
	}
	return out
}
