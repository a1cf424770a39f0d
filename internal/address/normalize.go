// Package address turns provider-collected postal addresses into the US
// shipping address stored on an order.
package address

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/kiggyshop-backend/pkg/types"
)

// ErrInvalid matches every normalization failure.
var ErrInvalid = errors.New("invalid shipping address")

var validStates = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {}, "DE": {}, "FL": {}, "GA": {},
	"HI": {}, "ID": {}, "IL": {}, "IN": {}, "IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {},
	"MA": {}, "MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {}, "NV": {}, "NH": {}, "NJ": {},
	"NM": {}, "NY": {}, "NC": {}, "ND": {}, "OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {},
	"SD": {}, "TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {}, "WI": {}, "WY": {},
}

// Shipping is a validated US shipping address.
type Shipping struct {
	Name    string `json:"name"`
	Number  string `json:"number"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
}

func (s Shipping) String() string {
	return fmt.Sprintf("%s %s %s, %s, US %s", s.Number, s.Street, s.City, s.State, s.Zipcode)
}

// FieldError lists the address fields that failed validation.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid shipping address: " + strings.Join(parts, "; ")
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalid
}

// Normalize validates a provider address. The house number is the first
// token of line 1; line 2 is appended to the street. ZIP+4 codes keep their
// 5-digit prefix. Missing fields are reported, never defaulted.
func Normalize(name string, raw types.Address) (Shipping, error) {
	problems := map[string]string{}

	name = strings.TrimSpace(name)
	if name == "" {
		problems["name"] = "required"
	}

	number, street := splitLine1(raw.Line1)
	if number == "" {
		problems["line1"] = "required"
	} else if street == "" {
		problems["line1"] = "must contain a house number and a street"
	}
	if raw.Line2 != nil {
		if extra := strings.TrimSpace(*raw.Line2); extra != "" && street != "" {
			street = street + " " + extra
		}
	}

	city := strings.TrimSpace(raw.City)
	if city == "" {
		problems["city"] = "required"
	}

	state := strings.ToUpper(strings.TrimSpace(raw.State))
	if state == "" {
		problems["state"] = "required"
	} else if _, ok := validStates[state]; !ok {
		problems["state"] = "must be a US state code"
	}

	zip, zipErr := normalizeZip(raw.PostalCode)
	if zipErr != "" {
		problems["postal_code"] = zipErr
	}

	if country := strings.ToUpper(strings.TrimSpace(raw.Country)); country != "" && country != "US" {
		problems["country"] = "only US addresses are shipped to"
	}

	if len(problems) > 0 {
		return Shipping{}, &FieldError{Fields: problems}
	}
	return Shipping{
		Name:    name,
		Number:  number,
		Street:  street,
		City:    city,
		State:   state,
		Zipcode: zip,
	}, nil
}

func splitLine1(line1 string) (string, string) {
	fields := strings.Fields(line1)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func normalizeZip(raw string) (string, string) {
	zip := strings.TrimSpace(raw)
	if zip == "" {
		return "", "required"
	}
	if len(zip) == 10 && zip[5] == '-' && allDigits(zip[6:]) {
		zip = zip[:5]
	}
	if len(zip) != 5 || !allDigits(zip) {
		return "", "must be a 5-digit ZIP code"
	}
	return zip, ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
