package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
)

const (
	defaultMaxLines       = 50
	maxQuantityPerLine    = 1000
	unknownItemDetailsKey = "unknown_item_ids"
)

// ErrUnknownItem matches any pricing failure caused by ids with no stock row.
var ErrUnknownItem = errors.New("unknown item")

// Cart is the client-asserted item id -> quantity mapping.
type Cart map[int64]int

// UnknownItemError lists every cart id that has no stock row.
type UnknownItemError struct {
	IDs []int64
}

func (e *UnknownItemError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("unknown item ids: %s", strings.Join(parts, ","))
}

func (e *UnknownItemError) Is(target error) bool {
	return target == ErrUnknownItem
}

// PricedLine is one cart entry priced from authoritative stock data.
type PricedLine struct {
	ItemID         int64          `json:"item_id"`
	Title          string         `json:"title"`
	Kind           enums.ItemKind `json:"kind"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	LineTotalCents int64          `json:"line_total_cents"`
}

// PricedCart is a cart annotated with per-line and aggregate totals. Lines
// are ordered by item id.
type PricedCart struct {
	Lines         []PricedLine `json:"lines"`
	SubtotalCents int64        `json:"subtotal_cents"`
}

// ItemIDs returns the priced item ids in line order.
func (p *PricedCart) ItemIDs() []int64 {
	ids := make([]int64, len(p.Lines))
	for i, line := range p.Lines {
		ids[i] = line.ItemID
	}
	return ids
}

type itemReader interface {
	GetMany(ctx context.Context, ids []int64) ([]models.Item, error)
}

// Calculator prices carts against the stock store.
type Calculator struct {
	items    itemReader
	maxLines int
}

// NewCalculator builds a calculator. maxLines <= 0 uses the default cap.
func NewCalculator(items itemReader, maxLines int) (*Calculator, error) {
	if items == nil {
		return nil, fmt.Errorf("item reader required")
	}
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &Calculator{items: items, maxLines: maxLines}, nil
}

// PriceCart fetches only the cart's items and prices every line. Any unknown
// id fails the whole cart; there is no partial result.
func (c *Calculator) PriceCart(ctx context.Context, cart Cart) (*PricedCart, error) {
	ids, err := c.validate(cart)
	if err != nil {
		return nil, err
	}

	items, err := c.items.GetMany(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	byID := make(map[int64]models.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownItem, &UnknownItemError{IDs: missing}, "cart contains unknown items").
			WithDetails(map[string]any{unknownItemDetailsKey: missing})
	}

	priced := &PricedCart{Lines: make([]PricedLine, 0, len(ids))}
	for _, id := range ids {
		item := byID[id]
		qty := cart[id]
		unit := item.Kind.UnitPrice()
		if unit <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("item %d has unpriced kind %q", id, item.Kind))
		}
		line := PricedLine{
			ItemID:         item.ID,
			Title:          item.Title,
			Kind:           item.Kind,
			UnitPriceCents: unit,
			Quantity:       qty,
			LineTotalCents: unit * int64(qty),
		}
		priced.Lines = append(priced.Lines, line)
		priced.SubtotalCents += line.LineTotalCents
	}
	return priced, nil
}

func (c *Calculator) validate(cart Cart) ([]int64, error) {
	if len(cart) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if len(cart) > c.maxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart has more than %d distinct items", c.maxLines))
	}

	details := map[string]string{}
	ids := make([]int64, 0, len(cart))
	for id, qty := range cart {
		key := strconv.FormatInt(id, 10)
		switch {
		case id <= 0:
			details[key] = "item id must be positive"
		case qty <= 0:
			details[key] = "quantity must be greater than zero"
		case qty > maxQuantityPerLine:
			details[key] = fmt.Sprintf("quantity must be at most %d", maxQuantityPerLine)
		}
		ids = append(ids, id)
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart").WithDetails(details)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
