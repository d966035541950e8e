package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every accepted status. Transitions are free-form: any
// listed value can be set from any other.
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusProcessing,
	StatusConfirmed,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order is a customer order. BookTitle and UnitPrice are snapshots taken from
// the catalog at placement time and never change afterwards, even when the
// catalog entry does. TotalPrice is UnitPrice times Quantity, computed once.
type Order struct {
	ID            string          `json:"id"`
	BookID        string          `json:"book_id"`
	BookTitle     string          `json:"book_title"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderList struct {
	Total  int     `json:"total"`
	Orders []Order `json:"orders"`
}
