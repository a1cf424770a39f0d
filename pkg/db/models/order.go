package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is created once per paid checkout session.
type Order struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutSessionID   uuid.UUID       `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex:ux_orders_checkout_session"`
	ProviderSessionID   string          `gorm:"column:provider_session_id;not null;uniqueIndex:ux_orders_provider_session"`
	Name                string          `gorm:"column:name;not null"`
	Email               string          `gorm:"column:email;not null"`
	SubtotalCents       int64           `gorm:"column:subtotal_cents;not null"`
	ShippingCents       int64           `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents          int64           `gorm:"column:total_cents;not null"`
	Currency            string          `gorm:"column:currency;type:text;not null;default:'usd'"`
	Shipped             bool            `gorm:"column:shipped;not null;default:false;index"`
	TrackingNumber      *string         `gorm:"column:tracking_number"`
	ShippedAt           *time.Time      `gorm:"column:shipped_at"`
	NeedsReconciliation bool            `gorm:"column:needs_reconciliation;not null;default:false"`
	Items               []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Address             *OrderAddress   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
