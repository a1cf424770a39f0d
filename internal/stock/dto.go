package stock

import (
	"time"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/money"
)

// ItemDTO is the catalog view of a stock row.
type ItemDTO struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Kind           enums.ItemKind `json:"kind"`
	KindName       string         `json:"kind_name"`
	Description    string         `json:"description"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	UnitPrice      string         `json:"unit_price"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// UpsertInput carries an admin edit. A nil ID creates a new item.
type UpsertInput struct {
	ID          *int64
	Title       string
	Kind        string
	Description string
	Quantity    int
}

func toDTO(item models.Item, currency string) ItemDTO {
	price := item.UnitPrice()
	return ItemDTO{
		ID:             item.ID,
		Title:          item.Title,
		Kind:           item.Kind,
		KindName:       item.Kind.DisplayName(),
		Description:    item.Description,
		Quantity:       item.Quantity,
		UnitPriceCents: price,
		UnitPrice:      money.Format(price, currency),
		UpdatedAt:      item.UpdatedAt,
	}
}
