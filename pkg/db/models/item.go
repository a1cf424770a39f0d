package models

import (
	"time"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
)

// Item is a sellable product together with its on-hand stock.
type Item struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Title       string         `gorm:"column:title;not null"`
	Kind        enums.ItemKind `gorm:"column:kind;type:text;not null"`
	Description string         `gorm:"column:description;not null;default:''"`
	Quantity    int            `gorm:"column:quantity;not null;default:0;check:chk_items_quantity_nonnegative,quantity >= 0"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string { return "items" }

// UnitPrice is derived from the kind, never stored.
func (i Item) UnitPrice() int64 {
	return i.Kind.UnitPrice()
}
