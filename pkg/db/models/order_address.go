package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OrderAddress is the US shipping address owned by exactly one order.
type OrderAddress struct {
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	Name    string    `gorm:"column:name;not null"`
	Number  string    `gorm:"column:number;not null"`
	Street  string    `gorm:"column:street;not null"`
	City    string    `gorm:"column:city;not null"`
	State   string    `gorm:"column:state;type:char(2);not null"`
	Zipcode string    `gorm:"column:zipcode;type:char(5);not null"`
}

func (OrderAddress) TableName() string { return "order_addresses" }

// String formats the address on one line, e.g. "12 Main St Springfield, IL, US 62701".
func (a OrderAddress) String() string {
	street := strings.TrimSpace(strings.Join([]string{a.Number, a.Street}, " "))
	return fmt.Sprintf("%s %s, %s, US %s", street, a.City, a.State, a.Zipcode)
}
