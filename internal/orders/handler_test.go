package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/pkg/models"
)

type fakeOrderStore struct {
	orders        map[string]*models.Order
	statusUpdates int
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *fakeOrderStore) List(ctx context.Context, skip, limit int, customerEmail string, status models.OrderStatus) ([]models.Order, int, error) {
	var out []models.Order
	for _, order := range s.orders {
		if customerEmail != "" && order.CustomerEmail != customerEmail {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		out = append(out, *order)
	}
	return out, len(out), nil
}

func (s *fakeOrderStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	s.statusUpdates++
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	clone := *order
	return &clone, nil
}

func (s *fakeOrderStore) Insert(ctx context.Context, order *models.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *fakeOrderStore) Ping(ctx context.Context) error { return nil }

func newTestRouter(store *fakeOrderStore, fetcher BookFetcher) *mux.Router {
	logger := testLogger()
	wf := NewWorkflow(fetcher, store, logger)
	handler := NewHandler(wf, store, fetcher, logger)
	router := mux.NewRouter()
	handler.Register(router)
	return router
}

func decodeError(t *testing.T, body *bytes.Buffer) errorBody {
	t.Helper()
	var wrapper map[string]errorBody
	if err := json.Unmarshal(body.Bytes(), &wrapper); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return wrapper["error"]
}

func TestPlaceOrderEndpointSuccess(t *testing.T) {
	fetcher := catalogWith(&models.Book{
		ID:       "book-1",
		Title:    "The Go Programming Language",
		Price:    decimal.RequireFromString("44.99"),
		Quantity: 5,
	})
	store := newFakeOrderStore()
	router := newTestRouter(store, fetcher)

	body := []byte(`{"book_id":"book-1","customer_name":"Ada","customer_email":"ada@example.com","quantity":2}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/orders", bytes.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var order models.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("Failed to decode order: %v", err)
	}
	if !order.TotalPrice.Equal(decimal.RequireFromString("89.98")) {
		t.Errorf("Expected total_price 89.98, got %s", order.TotalPrice)
	}
	if order.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}
	if len(store.orders) != 1 {
		t.Errorf("Expected one stored order, got %d", len(store.orders))
	}
}

func TestPlaceOrderEndpointInsufficientStock(t *testing.T) {
	fetcher := catalogWith(&models.Book{
		ID:       "book-1",
		Price:    decimal.RequireFromString("9.99"),
		Quantity: 1,
	})
	store := newFakeOrderStore()
	router := newTestRouter(store, fetcher)

	body := []byte(`{"book_id":"book-1","customer_name":"Ada","customer_email":"ada@example.com","quantity":3}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/orders", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	errBody := decodeError(t, rec.Body)
	if errBody.Code != "insufficient_stock" {
		t.Errorf("Expected code insufficient_stock, got %q", errBody.Code)
	}
	if errBody.Available == nil || *errBody.Available != 1 {
		t.Errorf("Expected available 1 in payload, got %v", errBody.Available)
	}
	if len(store.orders) != 0 {
		t.Errorf("Expected no stored orders, got %d", len(store.orders))
	}
}

func TestPlaceOrderEndpointBookNotFound(t *testing.T) {
	store := newFakeOrderStore()
	router := newTestRouter(store, &fakeFetcher{books: map[string]*models.Book{}})

	body := []byte(`{"book_id":"missing","customer_name":"Ada","customer_email":"ada@example.com","quantity":1}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/orders", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	errBody := decodeError(t, rec.Body)
	if errBody.Code != "book_not_found" {
		t.Errorf("Expected code book_not_found, got %q", errBody.Code)
	}
	if errBody.BookID != "missing" {
		t.Errorf("Expected book_id in payload, got %q", errBody.BookID)
	}
}

func TestPlaceOrderEndpointUpstreamDown(t *testing.T) {
	store := newFakeOrderStore()
	fetcher := &fakeFetcher{err: &catalog.UnavailableError{Err: errors.New("timeout")}}
	router := newTestRouter(store, fetcher)

	body := []byte(`{"book_id":"book-1","customer_name":"Ada","customer_email":"ada@example.com","quantity":1}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/orders", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if errBody := decodeError(t, rec.Body); errBody.Code != "catalog_unavailable" {
		t.Errorf("Expected code catalog_unavailable, got %q", errBody.Code)
	}
}

func TestPlaceOrderEndpointValidation(t *testing.T) {
	store := newFakeOrderStore()
	router := newTestRouter(store, &fakeFetcher{books: map[string]*models.Book{}})

	body := []byte(`{"book_id":"book-1","customer_name":"Ada","customer_email":"ada@example.com","quantity":0}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/orders", bytes.NewReader(body)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
}

func TestGetOrderIdempotent(t *testing.T) {
	order := &models.Order{
		ID:         "order-1",
		BookID:     "book-1",
		BookTitle:  "Some Book",
		Quantity:   2,
		UnitPrice:  decimal.RequireFromString("10.00"),
		TotalPrice: decimal.RequireFromString("20.00"),
		Status:     models.StatusPending,
	}
	router := newTestRouter(newFakeOrderStore(order), &fakeFetcher{})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/orders/order-1", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/orders/order-1", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("Expected 200 on both reads, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("Repeated reads returned different representations")
	}
}

func TestGetOrderNotFound(t *testing.T) {
	router := newTestRouter(newFakeOrderStore(), &fakeFetcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/unknown", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	order := &models.Order{ID: "order-1", Status: models.StatusPending}
	store := newFakeOrderStore(order)
	router := newTestRouter(store, &fakeFetcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PATCH", "/orders/order-1/status",
		bytes.NewReader([]byte(`{"status":"teleported"}`))))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
	if store.statusUpdates != 0 {
		t.Error("Store must not be touched for an out-of-enum status")
	}
	if order.Status != models.StatusPending {
		t.Errorf("Status changed to %s", order.Status)
	}
}

func TestUpdateStatusFreeFormTransitions(t *testing.T) {
	// No transition graph: delivered can go straight back to pending.
	order := &models.Order{ID: "order-1", Status: models.StatusDelivered}
	store := newFakeOrderStore(order)
	router := newTestRouter(store, &fakeFetcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PATCH", "/orders/order-1/status",
		bytes.NewReader([]byte(`{"status":"pending"}`))))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if order.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}
}

func TestListOrdersRejectsUnknownStatusFilter(t *testing.T) {
	router := newTestRouter(newFakeOrderStore(), &fakeFetcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders?status=bogus", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
}

func TestGetOrderBookReportsDivergence(t *testing.T) {
	order := &models.Order{
		ID:        "order-1",
		BookID:    "book-1",
		BookTitle: "Old Title",
		UnitPrice: decimal.RequireFromString("44.99"),
	}
	fetcher := catalogWith(&models.Book{
		ID:       "book-1",
		Title:    "New Title",
		Price:    decimal.RequireFromString("59.99"),
		Quantity: 3,
	})
	router := newTestRouter(newFakeOrderStore(order), fetcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/order-1/book", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp orderBookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Available {
		t.Error("Expected book to be reported available")
	}
	if !resp.Snapshot.TitleChanged || !resp.Snapshot.PriceChanged {
		t.Errorf("Expected divergence flags set, got %+v", resp.Snapshot)
	}
	if resp.Snapshot.OrderedTitle != "Old Title" {
		t.Errorf("Expected ordered title in diff, got %q", resp.Snapshot.OrderedTitle)
	}
}

func TestGetOrderBookCatalogDown(t *testing.T) {
	order := &models.Order{ID: "order-1", BookID: "book-1"}
	fetcher := &fakeFetcher{err: &catalog.UnavailableError{Err: errors.New("connection refused")}}
	router := newTestRouter(newFakeOrderStore(order), fetcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/order-1/book", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
}

func TestGetOrderBookDeletedFromCatalog(t *testing.T) {
	order := &models.Order{ID: "order-1", BookID: "book-1"}
	router := newTestRouter(newFakeOrderStore(order), &fakeFetcher{books: map[string]*models.Book{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/order-1/book", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}
