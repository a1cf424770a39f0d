package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderPrice caches the payment provider's product/price ids for an item at
// a given unit amount so repeated checkouts reuse them.
type ProviderPrice struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ItemID            int64     `gorm:"column:item_id;not null;uniqueIndex:ux_provider_prices_item_amount"`
	UnitAmountCents   int64     `gorm:"column:unit_amount_cents;not null;uniqueIndex:ux_provider_prices_item_amount"`
	Currency          string    `gorm:"column:currency;type:text;not null;uniqueIndex:ux_provider_prices_item_amount"`
	ProviderProductID string    `gorm:"column:provider_product_id;not null"`
	ProviderPriceID   string    `gorm:"column:provider_price_id;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ProviderPrice) TableName() string { return "provider_prices" }

func (p *ProviderPrice) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProviderShippingRate caches the provider shipping rate for one flat-rate policy.
type ProviderShippingRate struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AmountCents     int64     `gorm:"column:amount_cents;not null;uniqueIndex:ux_provider_shipping_rates_policy"`
	Currency        string    `gorm:"column:currency;type:text;not null;uniqueIndex:ux_provider_shipping_rates_policy"`
	MinBusinessDays int64     `gorm:"column:min_business_days;not null;uniqueIndex:ux_provider_shipping_rates_policy"`
	MaxBusinessDays int64     `gorm:"column:max_business_days;not null;uniqueIndex:ux_provider_shipping_rates_policy"`
	ProviderRateID  string    `gorm:"column:provider_rate_id;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ProviderShippingRate) TableName() string { return "provider_shipping_rates" }

func (r *ProviderShippingRate) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
