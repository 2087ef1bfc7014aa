// README: Booking handlers for seat reservations, driver decisions and confirmations.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, cmd booking.CreateCommand) (*booking.Booking, error)
	ListByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*booking.Booking, error)
	Decide(ctx context.Context, cmd booking.DecideCommand) (*booking.Booking, error)
	Cancel(ctx context.Context, cmd booking.CancelCommand) (*booking.Booking, error)
	ConfirmPickup(ctx context.Context, cmd booking.ConfirmCommand) (*booking.Booking, error)
	ConfirmDropoff(ctx context.Context, cmd booking.ConfirmCommand) (*booking.Booking, error)
}

type BookingHandler struct {
	bookings BookingService
	trips    TripService
}

func NewBookingHandler(bookings BookingService, trips TripService) *BookingHandler {
	return &BookingHandler{bookings: bookings, trips: trips}
}

type createBookingReq struct {
	Seats   int          `json:"seats"`
	Pickup  *types.Point `json:"pickup"`
	Dropoff *types.Point `json:"dropoff"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	tripID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		TripID:  tripID,
		RiderID: middleware.CallerUID(c),
		Seats:   req.Seats,
		Pickup:  req.Pickup,
		Dropoff: req.Dropoff,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, b)
}

// ListByTrip shows every booking to the trip's driver and only their own to riders.
func (h *BookingHandler) ListByTrip(c *gin.Context) {
	tripID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	t, err := h.trips.Get(ctx, tripID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	list, err := h.bookings.ListByTrip(ctx, tripID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	caller := middleware.CallerUID(c)
	if t.DriverID != caller {
		list = filter(list, func(b *booking.Booking) bool { return b.RiderID == caller })
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": nonNil(list)})
}

func (h *BookingHandler) ListMine(c *gin.Context) {
	list, err := h.bookings.ListByRider(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"bookings": nonNil(list)})
}

type rejectBookingReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Accept(c *gin.Context) {
	h.decide(c, true, "")
}

func (h *BookingHandler) Reject(c *gin.Context) {
	var req rejectBookingReq
	// The body is optional for a rejection.
	_ = c.ShouldBindJSON(&req)
	h.decide(c, false, req.Reason)
}

func (h *BookingHandler) decide(c *gin.Context, accept bool, reason string) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Decide(c.Request.Context(), booking.DecideCommand{
		BookingID: id,
		DriverID:  middleware.CallerUID(c),
		Accept:    accept,
		Reason:    reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{BookingID: id, RiderID: middleware.CallerUID(c)})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) DriverPickup(c *gin.Context) {
	h.confirm(c, booking.ActorDriver, h.bookings.ConfirmPickup)
}

func (h *BookingHandler) DriverDropoff(c *gin.Context) {
	h.confirm(c, booking.ActorDriver, h.bookings.ConfirmDropoff)
}

func (h *BookingHandler) RiderPickup(c *gin.Context) {
	h.confirm(c, booking.ActorRider, h.bookings.ConfirmPickup)
}

func (h *BookingHandler) RiderDropoff(c *gin.Context) {
	h.confirm(c, booking.ActorRider, h.bookings.ConfirmDropoff)
}

func (h *BookingHandler) confirm(c *gin.Context, by booking.Actor, apply func(context.Context, booking.ConfirmCommand) (*booking.Booking, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := apply(c.Request.Context(), booking.ConfirmCommand{
		BookingID: id,
		ActorID:   middleware.CallerUID(c),
		By:        by,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
