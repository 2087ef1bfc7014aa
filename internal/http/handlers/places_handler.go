// README: Place search proxy for the destination picker.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type PlaceSearcher interface {
	Search(ctx context.Context, query string, near *types.Point) ([]maps.Place, error)
}

type PlacesHandler struct {
	places PlaceSearcher
}

func NewPlacesHandler(places PlaceSearcher) *PlacesHandler {
	return &PlacesHandler{places: places}
}

func (h *PlacesHandler) Search(c *gin.Context) {
	if h.places == nil {
		writeError(c, http.StatusServiceUnavailable, "place search is not configured")
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, http.StatusBadRequest, "q is required")
		return
	}
	near, ok := optionalPoint(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	places, err := h.places.Search(c.Request.Context(), q, near)
	if err != nil {
		writeError(c, http.StatusBadGateway, "place search failed")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"places": nonNil(places)})
}

// optionalPoint reads lat and lng query parameters. Both absent is fine,
// anything else must be a valid coordinate.
func optionalPoint(c *gin.Context) (*types.Point, bool) {
	latRaw, lngRaw := c.Query("lat"), c.Query("lng")
	if latRaw == "" && lngRaw == "" {
		return nil, true
	}
	lat, err1 := strconv.ParseFloat(latRaw, 64)
	lng, err2 := strconv.ParseFloat(lngRaw, 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, false
	}
	return &p, true
}
