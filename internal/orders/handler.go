package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/pkg/models"
)

// OrderStore is the persistence surface the handlers need beyond the workflow.
type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, skip, limit int, customerEmail string, status models.OrderStatus) ([]models.Order, int, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
	Ping(ctx context.Context) error
}

// WebSocketHub receives order events for dashboard push.
type WebSocketHub interface {
	Broadcast(eventType string, data interface{})
}

type Handler struct {
	workflow *Workflow
	store    OrderStore
	catalog  BookFetcher
	logger   *logrus.Logger
	wsHub    WebSocketHub
}

func NewHandler(workflow *Workflow, store OrderStore, fetcher BookFetcher, logger *logrus.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		store:    store,
		catalog:  fetcher,
		logger:   logger,
	}
}

func (h *Handler) SetWebSocketHub(hub WebSocketHub) {
	h.wsHub = hub
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/orders", h.PlaceOrder).Methods("POST")
	router.HandleFunc("/orders", h.ListOrders).Methods("GET")
	router.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PATCH")
	router.HandleFunc("/orders/{id}/book", h.GetOrderBook).Methods("GET")
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: "Invalid request body",
		})
		return
	}

	order, err := h.workflow.PlaceOrder(r.Context(), req)
	if err != nil {
		h.respondWithPlacementError(w, req, err)
		return
	}

	if h.wsHub != nil {
		h.wsHub.Broadcast("order_created", order)
	}

	h.respondWithJSON(w, http.StatusCreated, order)
}

func (h *Handler) respondWithPlacementError(w http.ResponseWriter, req PlaceOrderRequest, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: validation.Error(),
		})
		return
	}

	var notFound *BookNotFoundError
	if errors.As(err, &notFound) {
		h.respondWithError(w, http.StatusBadRequest, errorBody{
			Code: "book_not_found", Message: notFound.Error(), BookID: notFound.BookID,
		})
		return
	}

	var stock *InsufficientStockError
	if errors.As(err, &stock) {
		h.respondWithError(w, http.StatusBadRequest, errorBody{
			Code: "insufficient_stock", Message: stock.Error(),
			BookID: stock.BookID, Available: &stock.Available,
		})
		return
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		h.logger.WithError(upstream.Err).Error("Catalog unavailable during order placement")
		h.respondWithError(w, http.StatusBadRequest, errorBody{
			Code: "catalog_unavailable", Message: "Catalog service is temporarily unavailable", BookID: req.BookID,
		})
		return
	}

	h.logger.WithError(err).Error("Order placement failed")
	h.respondWithError(w, http.StatusInternalServerError, errorBody{
		Code: "internal_error", Message: "Failed to place order",
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseListParams(r)
	if err != nil {
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: err.Error(),
		})
		return
	}

	customerEmail := r.URL.Query().Get("customer_email")
	status := models.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: "unknown status filter: " + string(status),
		})
		return
	}

	list, total, err := h.store.List(r.Context(), skip, limit, customerEmail, status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		h.respondWithError(w, http.StatusInternalServerError, errorBody{
			Code: "internal_error", Message: "Failed to list orders",
		})
		return
	}
	if list == nil {
		list = []models.Order{}
	}

	h.respondWithJSON(w, http.StatusOK, models.OrderList{Total: total, Orders: list})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, errorBody{
			Code: "not_found", Message: "Order not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", id).Error("Failed to get order")
		h.respondWithError(w, http.StatusInternalServerError, errorBody{
			Code: "internal_error", Message: "Failed to get order",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, order)
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode status update")
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: "Invalid request body",
		})
		return
	}

	if !req.Status.Valid() {
		h.respondWithError(w, http.StatusUnprocessableEntity, errorBody{
			Code: "validation_error", Message: "unknown status: " + string(req.Status),
		})
		return
	}

	order, err := h.store.UpdateStatus(r.Context(), id, req.Status)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, errorBody{
			Code: "not_found", Message: "Order not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", id).Error("Failed to update order status")
		h.respondWithError(w, http.StatusInternalServerError, errorBody{
			Code: "internal_error", Message: "Failed to update order status",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("Order status updated")

	if h.wsHub != nil {
		h.wsHub.Broadcast("order_status_changed", order)
	}

	h.respondWithJSON(w, http.StatusOK, order)
}

type orderBookResponse struct {
	Book      *models.Book `json:"book"`
	Available bool         `json:"available"`
	Snapshot  SnapshotDiff `json:"snapshot"`
}

// GetOrderBook re-fetches the order's book live from the catalog. The answer
// can diverge from the order's frozen title and unit price; the snapshot diff
// makes that visible.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, errorBody{
			Code: "not_found", Message: "Order not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", id).Error("Failed to get order")
		h.respondWithError(w, http.StatusInternalServerError, errorBody{
			Code: "internal_error", Message: "Failed to get order",
		})
		return
	}

	book, err := h.catalog.GetBook(r.Context(), order.BookID)
	if errors.Is(err, catalog.ErrBookNotFound) {
		h.respondWithError(w, http.StatusNotFound, errorBody{
			Code: "book_not_found", Message: "Book no longer exists in catalog", BookID: order.BookID,
		})
		return
	}
	var unavailable *catalog.UnavailableError
	if errors.As(err, &unavailable) {
		h.logger.WithError(unavailable).WithField("order_id", id).Error("Catalog unavailable")
		h.respondWithError(w, http.StatusBadGateway, errorBody{
			Code: "catalog_unavailable", Message: "Catalog service is temporarily unavailable",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", id).Error("Failed to fetch book")
		h.respondWithError(w, http.StatusInternalServerError, errorBody{
			Code: "internal_error", Message: "Failed to fetch book",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, orderBookResponse{
		Book:      book,
		Available: book.Quantity > 0,
		Snapshot:  CompareSnapshot(order, book),
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "order-service",
			"error":   "database connection failed",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "order-service",
	})
}

func parseListParams(r *http.Request) (skip, limit int, err error) {
	skip, limit = 0, 100
	query := r.URL.Query()

	if raw := query.Get("skip"); raw != "" {
		skip, err = strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
	}
	return skip, limit, nil
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	BookID    string `json:"book_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, body errorBody) {
	h.respondWithJSON(w, code, map[string]errorBody{"error": body})
}
