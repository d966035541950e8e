package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is a catalog entry. Only the catalog service mutates books; the order
// service reads them over HTTP.
type Book struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	ISBN        string          `json:"isbn,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BookInput carries the fields a client supplies when creating a book.
type BookInput struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	ISBN        string          `json:"isbn,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
}

// BookUpdate is a partial update; nil fields are left untouched.
type BookUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Author      *string          `json:"author,omitempty"`
	ISBN        *string          `json:"isbn,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Quantity    *int             `json:"quantity,omitempty"`
	Description *string          `json:"description,omitempty"`
}

type BookList struct {
	Total int    `json:"total"`
	Books []Book `json:"books"`
}
