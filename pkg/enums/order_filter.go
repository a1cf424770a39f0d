package enums

import (
	"fmt"
	"strings"
)

// OrderFilter narrows admin order listings by shipment state.
type OrderFilter string

const (
	OrderFilterAll       OrderFilter = "all"
	OrderFilterShipped   OrderFilter = "shipped"
	OrderFilterUnshipped OrderFilter = "unshipped"
)

var validOrderFilters = []OrderFilter{
	OrderFilterAll,
	OrderFilterShipped,
	OrderFilterUnshipped,
}

// String implements fmt.Stringer.
func (f OrderFilter) String() string {
	return string(f)
}

// IsValid reports whether the filter is recognized.
func (f OrderFilter) IsValid() bool {
	for _, candidate := range validOrderFilters {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseOrderFilter converts a raw string into an OrderFilter; empty means all.
func ParseOrderFilter(value string) (OrderFilter, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return OrderFilterAll, nil
	}
	for _, candidate := range validOrderFilters {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order filter %q", value)
}
