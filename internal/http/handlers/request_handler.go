// README: Trip request handlers: rider requests, driver offers and the offer-to-trip handoff.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/matching"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type RequestService interface {
	CreateRequest(ctx context.Context, cmd negotiation.CreateRequestCommand) (*negotiation.TripRequest, error)
	GetRequest(ctx context.Context, id types.ID) (*negotiation.TripRequest, error)
	ListRequestsByRider(ctx context.Context, riderID types.ID) ([]*negotiation.TripRequest, error)
	ListOffers(ctx context.Context, requestID types.ID) ([]*negotiation.DriverOffer, error)
	SubmitOffer(ctx context.Context, cmd negotiation.SubmitOfferCommand) (*negotiation.DriverOffer, error)
	AcceptOffer(ctx context.Context, cmd negotiation.AcceptOfferCommand) (*negotiation.TripRequest, *negotiation.DriverOffer, error)
	RejectOffer(ctx context.Context, cmd negotiation.RejectOfferCommand) (*negotiation.DriverOffer, error)
	WithdrawOffer(ctx context.Context, cmd negotiation.WithdrawOfferCommand) (*negotiation.DriverOffer, error)
	CancelRequest(ctx context.Context, cmd negotiation.CancelRequestCommand) (*negotiation.TripRequest, error)
	StartTripFromAcceptedOffer(ctx context.Context, cmd negotiation.StartTripCommand) (*trip.Trip, *booking.Booking, error)
}

type RequestDiscovery interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]matching.NearbyRequest, error)
}

type RequestHandler struct {
	requests  RequestService
	discovery RequestDiscovery
}

func NewRequestHandler(requests RequestService, discovery RequestDiscovery) *RequestHandler {
	return &RequestHandler{requests: requests, discovery: discovery}
}

type createRequestReq struct {
	WindowStart  time.Time    `json:"window_start" binding:"required"`
	WindowEnd    time.Time    `json:"window_end" binding:"required"`
	Seats        int          `json:"seats"`
	PriceCeiling *types.Money `json:"price_ceiling"`
	Origin       types.Point  `json:"origin"`
	Destination  types.Point  `json:"destination"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PriceCeiling != nil && req.PriceCeiling.Currency == "" {
		req.PriceCeiling.Currency = types.DefaultCurrency
	}
	r, err := h.requests.CreateRequest(c.Request.Context(), negotiation.CreateRequestCommand{
		RiderID:      middleware.CallerUID(c),
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
		Seats:        req.Seats,
		PriceCeiling: req.PriceCeiling,
		Origin:       req.Origin,
		Destination:  req.Destination,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RequestHandler) ListMine(c *gin.Context) {
	list, err := h.requests.ListRequestsByRider(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"requests": nonNil(list)})
}

type nearbyRequest struct {
	*negotiation.TripRequest
	DistanceMeters float64 `json:"distance_m"`
}

// Nearby lists open requests around lat,lng for drivers looking for riders.
func (h *RequestHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	p := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 0.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 || r > 50 {
			writeError(c, http.StatusBadRequest, "radius_km must be in (0, 50]")
			return
		}
		radius = r
	}

	ctx := c.Request.Context()
	found, err := h.discovery.Nearby(ctx, p, radius)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	caller := middleware.CallerUID(c)
	out := make([]nearbyRequest, 0, len(found))
	for _, n := range found {
		r, err := h.requests.GetRequest(ctx, types.ID(n.ID))
		if errors.Is(err, negotiation.ErrNotFound) {
			continue
		}
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if !r.Open() || r.RiderID == caller {
			continue
		}
		out = append(out, nearbyRequest{TripRequest: r, DistanceMeters: n.DistanceMeters})
	}
	writeJSON(c, http.StatusOK, map[string]any{"requests": out})
}

func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.requests.GetRequest(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.requests.CancelRequest(c.Request.Context(), negotiation.CancelRequestCommand{
		RequestID: id,
		CallerID:  middleware.CallerUID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type submitOfferReq struct {
	ProposedTime time.Time   `json:"proposed_time" binding:"required"`
	PricePerSeat types.Money `json:"price_per_seat"`
	Seats        int         `json:"seats"`
	Vehicle      *string     `json:"vehicle"`
}

func (h *RequestHandler) SubmitOffer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PricePerSeat.Currency == "" {
		req.PricePerSeat.Currency = types.DefaultCurrency
	}
	o, err := h.requests.SubmitOffer(c.Request.Context(), negotiation.SubmitOfferCommand{
		RequestID:    id,
		DriverID:     middleware.CallerUID(c),
		ProposedTime: req.ProposedTime,
		PricePerSeat: req.PricePerSeat,
		Seats:        req.Seats,
		Vehicle:      req.Vehicle,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

// ListOffers shows every offer to the request owner and only their own offers to drivers.
func (h *RequestHandler) ListOffers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	r, err := h.requests.GetRequest(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	offers, err := h.requests.ListOffers(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	caller := middleware.CallerUID(c)
	if r.RiderID != caller {
		offers = filter(offers, func(o *negotiation.DriverOffer) bool { return o.DriverID == caller })
	}
	writeJSON(c, http.StatusOK, map[string]any{"offers": nonNil(offers)})
}

func (h *RequestHandler) AcceptOffer(c *gin.Context) {
	id, offerID, ok := offerPath(c)
	if !ok {
		return
	}
	r, o, err := h.requests.AcceptOffer(c.Request.Context(), negotiation.AcceptOfferCommand{
		RequestID: id,
		OfferID:   offerID,
		CallerID:  middleware.CallerUID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"request": r, "offer": o})
}

func (h *RequestHandler) RejectOffer(c *gin.Context) {
	id, offerID, ok := offerPath(c)
	if !ok {
		return
	}
	o, err := h.requests.RejectOffer(c.Request.Context(), negotiation.RejectOfferCommand{
		RequestID: id,
		OfferID:   offerID,
		CallerID:  middleware.CallerUID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *RequestHandler) WithdrawOffer(c *gin.Context) {
	id, offerID, ok := offerPath(c)
	if !ok {
		return
	}
	o, err := h.requests.WithdrawOffer(c.Request.Context(), negotiation.WithdrawOfferCommand{
		RequestID: id,
		OfferID:   offerID,
		DriverID:  middleware.CallerUID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *RequestHandler) StartTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, b, err := h.requests.StartTripFromAcceptedOffer(c.Request.Context(), negotiation.StartTripCommand{
		RequestID: id,
		CallerID:  middleware.CallerUID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"trip": t, "booking": b})
}

func offerPath(c *gin.Context) (types.ID, types.ID, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return "", "", false
	}
	offerID, ok := pathID(c, "offer_id")
	if !ok {
		return "", "", false
	}
	return id, offerID, true
}

func filter[T any](list []T, keep func(T) bool) []T {
	out := make([]T, 0, len(list))
	for _, v := range list {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
