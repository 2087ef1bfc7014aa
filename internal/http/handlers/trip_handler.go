// README: Trip handlers for publishing trips and driver-side transitions.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type TripService interface {
	Create(ctx context.Context, cmd trip.CreateCommand) (*trip.Trip, error)
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*trip.Trip, error)
	Start(ctx context.Context, cmd trip.TransitionCommand) (*trip.Trip, error)
	Complete(ctx context.Context, cmd trip.TransitionCommand) (*trip.Trip, error)
	Cancel(ctx context.Context, cmd trip.TransitionCommand) (*trip.Trip, error)
	UpdateProgress(ctx context.Context, cmd trip.ProgressCommand) (*trip.Trip, error)
}

type TripHandler struct {
	trips TripService
}

func NewTripHandler(trips TripService) *TripHandler {
	return &TripHandler{trips: trips}
}

type createTripReq struct {
	Origin        types.Point `json:"origin"`
	Destination   types.Point `json:"destination"`
	DepartureTime time.Time   `json:"departure_time" binding:"required"`
	Capacity      int         `json:"capacity"`
	PricePerSeat  types.Money `json:"price_per_seat"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PricePerSeat.Currency == "" {
		req.PricePerSeat.Currency = types.DefaultCurrency
	}
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		DriverID:      middleware.CallerUID(c),
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		Capacity:      req.Capacity,
		PricePerSeat:  req.PricePerSeat,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, t)
}

func (h *TripHandler) ListMine(c *gin.Context) {
	list, err := h.trips.ListByDriver(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"trips": nonNil(list)})
}

func (h *TripHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.trips.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) Start(c *gin.Context) {
	h.transition(c, h.trips.Start)
}

func (h *TripHandler) Complete(c *gin.Context) {
	h.transition(c, h.trips.Complete)
}

func (h *TripHandler) Cancel(c *gin.Context) {
	h.transition(c, h.trips.Cancel)
}

func (h *TripHandler) transition(c *gin.Context, apply func(context.Context, trip.TransitionCommand) (*trip.Trip, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := apply(c.Request.Context(), trip.TransitionCommand{TripID: id, DriverID: middleware.CallerUID(c)})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type progressReq struct {
	Progress *int `json:"progress"`
}

func (h *TripHandler) UpdateProgress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Progress == nil {
		writeError(c, http.StatusBadRequest, "progress is required")
		return
	}
	t, err := h.trips.UpdateProgress(c.Request.Context(), trip.ProgressCommand{
		TripID:   id,
		DriverID: middleware.CallerUID(c),
		Progress: *req.Progress,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}
