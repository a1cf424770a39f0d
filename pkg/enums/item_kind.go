package enums

import (
	"fmt"
	"strings"
)

// ItemKind is the closed set of product kinds sold in the shop.
// Prices are a total function over the kind.
type ItemKind string

const (
	ItemKindBigPrint   ItemKind = "big_print"
	ItemKindSmallPrint ItemKind = "small_print"
	ItemKindButton     ItemKind = "button"
)

var validItemKinds = []ItemKind{
	ItemKindBigPrint,
	ItemKindSmallPrint,
	ItemKindButton,
}

// unit prices in minor currency units (cents)
var itemKindUnitPrice = map[ItemKind]int64{
	ItemKindBigPrint:   2000,
	ItemKindSmallPrint: 700,
	ItemKindButton:     300,
}

var itemKindDisplayName = map[ItemKind]string{
	ItemKindBigPrint:   "Big print",
	ItemKindSmallPrint: "Small print",
	ItemKindButton:     "Button",
}

// String implements fmt.Stringer.
func (k ItemKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is recognized.
func (k ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// UnitPrice returns the price of one unit in cents. Unknown kinds price at 0
// and are rejected before they reach pricing.
func (k ItemKind) UnitPrice() int64 {
	return itemKindUnitPrice[k]
}

func (k ItemKind) DisplayName() string {
	if name, ok := itemKindDisplayName[k]; ok {
		return name
	}
	return string(k)
}

// ItemKinds returns every valid kind.
func ItemKinds() []ItemKind {
	out := make([]ItemKind, len(validItemKinds))
	copy(out, validItemKinds)
	return out
}

// ParseItemKind converts a raw string into an ItemKind. Matching ignores case
// and accepts the CamelCase spelling used by the storefront UI.
func ParseItemKind(value string) (ItemKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "bigprint":
		return ItemKindBigPrint, nil
	case "smallprint":
		return ItemKindSmallPrint, nil
	}
	for _, candidate := range validItemKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}
