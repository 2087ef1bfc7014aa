package ai

// DraftResult captures the structured output from the AI model. Every field
// the model could not infer from the message is left nil.
type DraftResult struct {
	// Destination is the place the rider wants to reach, as written by the rider.
	Destination *string `json:"destination,omitempty"`

	// WindowStart and WindowEnd bound the acceptable departure, in RFC3339.
	WindowStart *string `json:"window_start,omitempty"`
	WindowEnd   *string `json:"window_end,omitempty"`

	Seats *int `json:"seats,omitempty"`

	// PriceCeiling is the most the rider will pay per seat, in whole currency units.
	PriceCeiling *int64  `json:"price_ceiling,omitempty"`
	Currency     *string `json:"currency,omitempty"`

	// Reply is a short sentence shown to the rider alongside the draft.
	Reply string `json:"reply"`
}
