package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/pkg/models"
)

// BookFetcher is the upstream catalog surface the workflow needs. Satisfied by
// *catalog.Client.
type BookFetcher interface {
	GetBook(ctx context.Context, bookID string) (*models.Book, error)
}

// OrderInserter persists exactly one order row per successful placement.
type OrderInserter interface {
	Insert(ctx context.Context, order *models.Order) error
}

// PlaceOrderRequest is the client-facing order placement payload.
type PlaceOrderRequest struct {
	BookID        string `json:"book_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Quantity      int    `json:"quantity"`
}

// Workflow orchestrates order placement: validate the request, fetch the book
// from the catalog over the network, check declared stock, snapshot title and
// price, and persist a single pending order.
//
// Stock is checked but never decremented or reserved; concurrent placements
// against the same book can each pass the check and together exceed the
// declared quantity. The check is advisory by contract, not a reservation.
type Workflow struct {
	catalog BookFetcher
	store   OrderInserter
	logger  *logrus.Logger
}

func NewWorkflow(fetcher BookFetcher, store OrderInserter, logger *logrus.Logger) *Workflow {
	return &Workflow{catalog: fetcher, store: store, logger: logger}
}

// PlaceOrder creates an order or fails without side effects. On any failure
// path zero rows are inserted.
func (wf *Workflow) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	book, err := wf.catalog.GetBook(ctx, req.BookID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			return nil, &BookNotFoundError{BookID: req.BookID}
		}
		var unavailable *catalog.UnavailableError
		if errors.As(err, &unavailable) {
			return nil, &UpstreamError{Err: unavailable}
		}
		return nil, &UpstreamError{Err: err}
	}

	if book.Quantity < req.Quantity {
		return nil, &InsufficientStockError{
			BookID:    req.BookID,
			Available: book.Quantity,
			Requested: req.Quantity,
		}
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:            uuid.New().String(),
		BookID:        book.ID,
		BookTitle:     book.Title,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Quantity:      req.Quantity,
		UnitPrice:     book.Price,
		TotalPrice:    book.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := wf.store.Insert(ctx, order); err != nil {
		wf.logger.WithError(err).WithField("book_id", req.BookID).Error("Failed to persist order")
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	wf.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"book_id":     order.BookID,
		"quantity":    order.Quantity,
		"total_price": order.TotalPrice.String(),
	}).Info("Order placed")

	return order, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if req.BookID == "" {
		return &ValidationError{Field: "book_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return &ValidationError{Field: "customer_name", Reason: "must not be empty"}
	}
	if !strings.Contains(req.CustomerEmail, "@") {
		return &ValidationError{Field: "customer_email", Reason: "must be a valid email address"}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	return nil
}
