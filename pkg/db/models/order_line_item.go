package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
)

// OrderLineItem snapshots a purchased item so later catalog edits don't rewrite history.
type OrderLineItem struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	ItemID         int64          `gorm:"column:item_id;not null"`
	Title          string         `gorm:"column:title;not null"`
	Kind           enums.ItemKind `gorm:"column:kind;type:text;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	Quantity       int            `gorm:"column:quantity;not null;check:chk_order_line_items_quantity_positive,quantity > 0"`
	LineTotalCents int64          `gorm:"column:line_total_cents;not null"`
	// OversoldBy is the shortfall observed when stock was decremented.
	OversoldBy int `gorm:"column:oversold_by;not null;default:0"`
}

func (OrderLineItem) TableName() string { return "order_line_items" }

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
