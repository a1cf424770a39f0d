package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/internal/cart"
	"github.com/angelmondragon/kiggyshop-backend/pkg/money"
)

// SessionResult is returned to the shopper after a checkout session is opened.
type SessionResult struct {
	CheckoutSessionID uuid.UUID    `json:"checkout_session_id"`
	PaymentURL        string       `json:"payment_url"`
	Lines             []LineResult `json:"lines"`
	SubtotalCents     int64        `json:"subtotal_cents"`
	ShippingCents     int64        `json:"shipping_cents"`
	TotalCents        int64        `json:"total_cents"`
	Currency          string       `json:"currency"`
	Total             string       `json:"total"`
	ExpiresAt         string       `json:"expires_at"`
}

type LineResult struct {
	cart.PricedLine
	LineTotal string `json:"line_total"`
}

func toLineResults(lines []cart.PricedLine, currency string) []LineResult {
	out := make([]LineResult, len(lines))
	for i, line := range lines {
		out[i] = LineResult{
			PricedLine: line,
			LineTotal:  money.Format(line.LineTotalCents, currency),
		}
	}
	return out
}
