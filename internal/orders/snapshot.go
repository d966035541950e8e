package orders

import (
	"github.com/shopspring/decimal"

	"github.com/bookstore/services/pkg/models"
)

// SnapshotDiff summarizes how the live catalog entry has drifted from the
// values frozen into an order at placement time. The order itself is never
// rewritten; this is purely informational.
type SnapshotDiff struct {
	TitleChanged bool            `json:"title_changed"`
	PriceChanged bool            `json:"price_changed"`
	OrderedTitle string          `json:"ordered_title,omitempty"`
	OrderedPrice decimal.Decimal `json:"ordered_unit_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

func CompareSnapshot(order *models.Order, book *models.Book) SnapshotDiff {
	diff := SnapshotDiff{
		TitleChanged: order.BookTitle != book.Title,
		PriceChanged: !order.UnitPrice.Equal(book.Price),
		OrderedPrice: order.UnitPrice,
		CurrentPrice: book.Price,
	}
	if diff.TitleChanged {
		diff.OrderedTitle = order.BookTitle
	}
	return diff
}
