// README: Assistant drafts trip requests from free text, metered by a monthly quota.
package assistant

import (
	"errors"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var (
	// ErrQuotaExhausted is returned when a user has no tokens remaining for the current month.
	ErrQuotaExhausted = errors.New("assistant quota exhausted for this month")
	ErrValidation     = errors.New("message is required")
)

// DefaultTokens is the number of drafts granted per month.
const DefaultTokens = 100

// defaultWindow is used when the rider gives a single departure time.
const defaultWindow = 30 * time.Minute

// Draft is a pre-filled trip request. It is never submitted on the rider's behalf.
type Draft struct {
	DestinationText string       `json:"destination_text,omitempty"`
	DestinationName string       `json:"destination_name,omitempty"`
	Destination     *types.Point `json:"destination,omitempty"`
	Origin          *types.Point `json:"origin,omitempty"`
	WindowStart     *time.Time   `json:"window_start,omitempty"`
	WindowEnd       *time.Time   `json:"window_end,omitempty"`
	Seats           *int         `json:"seats,omitempty"`
	PriceCeiling    *types.Money `json:"price_ceiling,omitempty"`
	Reply           string       `json:"reply"`
}
