package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
)

// CheckoutLine is the priced snapshot of one cart row taken at checkout time.
type CheckoutLine struct {
	ItemID          int64          `json:"item_id"`
	Title           string         `json:"title"`
	Kind            enums.ItemKind `json:"kind"`
	UnitPriceCents  int64          `json:"unit_price_cents"`
	Quantity        int            `json:"quantity"`
	LineTotalCents  int64          `json:"line_total_cents"`
	ProviderPriceID string         `json:"provider_price_id,omitempty"`
}

// CheckoutSession is the durable record of a checkout that has been handed to
// the payment provider but not yet paid. Fulfillment reads the cart from here.
type CheckoutSession struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	ProviderSessionID *string                     `gorm:"column:provider_session_id;uniqueIndex:ux_checkout_sessions_provider_session"`
	Status            enums.CheckoutSessionStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	Lines             []CheckoutLine              `gorm:"column:line_items;type:jsonb;serializer:json;not null"`
	SubtotalCents     int64                       `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int64                       `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int64                       `gorm:"column:total_cents;not null"`
	Currency          string                      `gorm:"column:currency;type:text;not null;default:'usd'"`
	PaymentURL        *string                     `gorm:"column:payment_url"`
	ExpiresAt         time.Time                   `gorm:"column:expires_at;not null"`
	FulfilledAt       *time.Time                  `gorm:"column:fulfilled_at"`
	ExpiredAt         *time.Time                  `gorm:"column:expired_at"`
	OrderID           *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	NeedsAttention    bool                        `gorm:"column:needs_attention;not null;default:false"`
	AttentionReason   *string                     `gorm:"column:attention_reason"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
