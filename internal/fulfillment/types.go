package fulfillment

import (
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/internal/address"
)

// CheckoutCompleted is a verified, paid checkout reported by the payment provider.
type CheckoutCompleted struct {
	EventID           string
	ProviderSessionID string
	CheckoutSessionID uuid.UUID
	Name              string
	Email             string
	Address           address.Shipping
	AmountTotalCents  int64
	Currency          string
}

// Result describes the durable outcome of a fulfillment.
type Result struct {
	OrderID             uuid.UUID    `json:"order_id"`
	CheckoutSessionID   uuid.UUID    `json:"checkout_session_id"`
	TotalCents          int64        `json:"total_cents"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	OversoldUnits       int          `json:"oversold_units"`
	Lines               []LineResult `json:"lines"`
}

// LineResult is the stock effect of one purchased line.
type LineResult struct {
	ItemID     int64 `json:"item_id"`
	Quantity   int   `json:"quantity"`
	StockAfter int   `json:"stock_after"`
	OversoldBy int   `json:"oversold_by"`
}

// ErrUnshippable means the provider charged for a checkout we cannot ship.
var ErrUnshippable = errors.New("paid checkout cannot be shipped")

// UnshippableError identifies a paid checkout whose shipping details failed
// validation. The payment stands, so the session is flagged for an operator.
type UnshippableError struct {
	CheckoutSessionID uuid.UUID
	ProviderSessionID string
	Err               error
}

func (e *UnshippableError) Error() string {
	return ErrUnshippable.Error() + ": " + e.Err.Error()
}

func (e *UnshippableError) Unwrap() []error { return []error{ErrUnshippable, e.Err} }
