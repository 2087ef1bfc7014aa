// README: Common money value object used across modules.
package types

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// DefaultCurrency is used when a request omits the currency (Congolese franc).
const DefaultCurrency = "CDF"

func (m Money) Exceeds(ceiling Money) bool {
	return m.Amount > ceiling.Amount
}
