// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/assistant"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the uuid-shaped ids the services generate.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads and validates a path parameter, writing 400 when it is malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps sentinel errors from every module to a status and
// returns their message verbatim. Anything unknown is a 500.
func writeDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

func statusFor(err error) int {
	for _, m := range errorStatuses {
		for _, target := range m.errs {
			if errors.Is(err, target) {
				return m.status
			}
		}
	}
	return http.StatusInternalServerError
}

var errorStatuses = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{
		negotiation.ErrValidation, negotiation.ErrOutOfWindow, negotiation.ErrPriceExceeded, negotiation.ErrInsufficientSeats,
		trip.ErrValidation,
		booking.ErrValidation,
		assistant.ErrValidation,
	}},
	{http.StatusForbidden, []error{
		negotiation.ErrNotOwner, negotiation.ErrNotSelectedDriver, negotiation.ErrNotVerified,
		trip.ErrNotDriver,
		booking.ErrNotDriver, booking.ErrNotRider, booking.ErrNotVerified,
	}},
	{http.StatusNotFound, []error{
		negotiation.ErrNotFound, negotiation.ErrOfferNotFound,
		trip.ErrNotFound,
		booking.ErrNotFound,
	}},
	{http.StatusConflict, []error{
		negotiation.ErrRequestClosed, negotiation.ErrDuplicateOffer, negotiation.ErrAlreadyResolved,
		negotiation.ErrOfferNotPending, negotiation.ErrInvalidState, negotiation.ErrConflict,
		trip.ErrInvalidState, trip.ErrConflict,
		booking.ErrInvalidState, booking.ErrConflict, booking.ErrCapacity, booking.ErrPerRiderLimit, booking.ErrTripNotBookable,
		booking.ErrTripNotOngoing, booking.ErrAlreadyPickedUp, booking.ErrNotPickedUp,
	}},
	{http.StatusTooManyRequests, []error{
		assistant.ErrQuotaExhausted,
	}},
}
