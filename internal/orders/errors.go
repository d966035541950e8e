package orders

import "fmt"

// ValidationError reports malformed order input. It maps to a 422 at the HTTP
// boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BookNotFoundError reports that the catalog answered but the requested book
// does not exist.
type BookNotFoundError struct {
	BookID string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %s not found in catalog", e.BookID)
}

// InsufficientStockError reports that the catalog's declared stock does not
// cover the requested quantity.
type InsufficientStockError struct {
	BookID    string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s: available %d, requested %d",
		e.BookID, e.Available, e.Requested)
}

// UpstreamError reports that the catalog call could not complete. No order is
// created and no retry is attempted.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("catalog service unavailable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
