// README: Driver handlers for availability in the matching index.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type DriverAvailability interface {
	SetDriverAvailable(ctx context.Context, driverID types.ID, p types.Point) error
	SetDriverUnavailable(ctx context.Context, driverID types.ID) error
}

type DriverHandler struct {
	matching DriverAvailability
}

func NewDriverHandler(matching DriverAvailability) *DriverHandler {
	return &DriverHandler{matching: matching}
}

type availabilityReq struct {
	Available *bool    `json:"available"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

// SetAvailability puts the caller in or out of the pool notified about new
// requests. Only accounts carrying the driver role may join.
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	if middleware.CallerRole(c) != "driver" {
		writeError(c, http.StatusForbidden, "driver role required")
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	ctx := c.Request.Context()
	driverID := middleware.CallerUID(c)

	if !*req.Available {
		if err := h.matching.SetDriverUnavailable(ctx, driverID); err != nil {
			writeDomainError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, map[string]any{"available": false})
		return
	}

	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
	if !p.Valid() {
		writeError(c, http.StatusBadRequest, "invalid coordinates")
		return
	}
	if err := h.matching.SetDriverAvailable(ctx, driverID, p); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"available": true, "location": p})
}
