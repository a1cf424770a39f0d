package types

import "strings"

// Address is a postal address as collected by the payment provider.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// IsZero reports whether no address field was provided.
func (a Address) IsZero() bool {
	line2 := ""
	if a.Line2 != nil {
		line2 = *a.Line2
	}
	for _, v := range []string{a.Line1, line2, a.City, a.State, a.PostalCode, a.Country} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
