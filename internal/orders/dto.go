package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/money"
)

// OrderDTO is the admin view of an order.
type OrderDTO struct {
	ID                  uuid.UUID   `json:"id"`
	CheckoutSessionID   uuid.UUID   `json:"checkout_session_id"`
	Name                string      `json:"name"`
	Email               string      `json:"email"`
	SubtotalCents       int64       `json:"subtotal_cents"`
	ShippingCents       int64       `json:"shipping_cents"`
	TotalCents          int64       `json:"total_cents"`
	Total               string      `json:"total"`
	Currency            string      `json:"currency"`
	Shipped             bool        `json:"shipped"`
	TrackingNumber      *string     `json:"tracking_number,omitempty"`
	ShippedAt           *time.Time  `json:"shipped_at,omitempty"`
	NeedsReconciliation bool        `json:"needs_reconciliation"`
	Items               []LineDTO   `json:"items"`
	Address             *AddressDTO `json:"address,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

type LineDTO struct {
	ItemID         int64          `json:"item_id"`
	Title          string         `json:"title"`
	Kind           enums.ItemKind `json:"kind"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	LineTotalCents int64          `json:"line_total_cents"`
	OversoldBy     int            `json:"oversold_by,omitempty"`
}

type AddressDTO struct {
	Name    string `json:"name"`
	Number  string `json:"number"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
	Line    string `json:"line"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func toDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                  order.ID,
		CheckoutSessionID:   order.CheckoutSessionID,
		Name:                order.Name,
		Email:               order.Email,
		SubtotalCents:       order.SubtotalCents,
		ShippingCents:       order.ShippingCents,
		TotalCents:          order.TotalCents,
		Total:               money.Format(order.TotalCents, order.Currency),
		Currency:            order.Currency,
		Shipped:             order.Shipped,
		TrackingNumber:      order.TrackingNumber,
		ShippedAt:           order.ShippedAt,
		NeedsReconciliation: order.NeedsReconciliation,
		Items:               make([]LineDTO, 0, len(order.Items)),
		CreatedAt:           order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, LineDTO{
			ItemID:         item.ItemID,
			Title:          item.Title,
			Kind:           item.Kind,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
			OversoldBy:     item.OversoldBy,
		})
	}
	if a := order.Address; a != nil {
		dto.Address = &AddressDTO{
			Name:    a.Name,
			Number:  a.Number,
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Zipcode: a.Zipcode,
			Line:    a.String(),
		}
	}
	return dto
}
