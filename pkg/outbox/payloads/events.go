package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
)

// OrderLine is the display copy of a purchased line.
type OrderLine struct {
	ItemID         int64          `json:"item_id"`
	Title          string         `json:"title"`
	Kind           enums.ItemKind `json:"kind"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	LineTotalCents int64          `json:"line_total_cents"`
}

// OrderPaidEvent is emitted once per order when payment is confirmed and the
// order is recorded.
type OrderPaidEvent struct {
	OrderID             uuid.UUID   `json:"order_id"`
	CheckoutSessionID   uuid.UUID   `json:"checkout_session_id"`
	Name                string      `json:"name"`
	Email               string      `json:"email"`
	Address             string      `json:"address,omitempty"`
	Lines               []OrderLine `json:"lines"`
	SubtotalCents       int64       `json:"subtotal_cents"`
	ShippingCents       int64       `json:"shipping_cents"`
	TotalCents          int64       `json:"total_cents"`
	Currency            string      `json:"currency"`
	NeedsReconciliation bool        `json:"needs_reconciliation"`
}

// OrderShippedEvent is emitted when an admin records a tracking number.
type OrderShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	TrackingNumber string    `json:"tracking_number"`
	ShippedAt      time.Time `json:"shipped_at"`
}
