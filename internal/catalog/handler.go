package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/pkg/models"
)

// BookStore is the persistence surface the handlers need.
type BookStore interface {
	List(ctx context.Context, skip, limit int, search string) ([]models.Book, int, error)
	Get(ctx context.Context, id string) (*models.Book, error)
	Create(ctx context.Context, input models.BookInput) (*models.Book, error)
	Update(ctx context.Context, id string, update models.BookUpdate) (*models.Book, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type Handler struct {
	store  BookStore
	logger *logrus.Logger
}

func NewHandler(store BookStore, logger *logrus.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/books", h.ListBooks).Methods("GET")
	router.HandleFunc("/books", h.CreateBook).Methods("POST")
	router.HandleFunc("/books/{id}", h.GetBook).Methods("GET")
	router.HandleFunc("/books/{id}", h.UpdateBook).Methods("PUT")
	router.HandleFunc("/books/{id}", h.DeleteBook).Methods("DELETE")
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseListParams(r)
	if err != nil {
		h.respondWithError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	search := r.URL.Query().Get("search")

	books, total, err := h.store.List(r.Context(), skip, limit, search)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list books")
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to list books")
		return
	}
	if books == nil {
		books = []models.Book{}
	}

	h.respondWithJSON(w, http.StatusOK, models.BookList{Total: total, Books: books})
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	book, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "not_found", "Book not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("book_id", id).Error("Failed to get book")
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get book")
		return
	}

	h.respondWithJSON(w, http.StatusOK, book)
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var input models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.WithError(err).Error("Failed to decode book request")
		h.respondWithError(w, http.StatusUnprocessableEntity, "validation_error", "Invalid request body")
		return
	}

	if msg := validateBookInput(input); msg != "" {
		h.respondWithError(w, http.StatusUnprocessableEntity, "validation_error", msg)
		return
	}

	book, err := h.store.Create(r.Context(), input)
	if errors.Is(err, ErrISBNTaken) {
		h.respondWithError(w, http.StatusConflict, "isbn_conflict",
			fmt.Sprintf("Book with ISBN %s already exists", input.ISBN))
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create book")
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to create book")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"book_id": book.ID,
		"title":   book.Title,
		"author":  book.Author,
	}).Info("Book created")

	h.respondWithJSON(w, http.StatusCreated, book)
}

func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var update models.BookUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.WithError(err).Error("Failed to decode book update")
		h.respondWithError(w, http.StatusUnprocessableEntity, "validation_error", "Invalid request body")
		return
	}

	if msg := validateBookUpdate(update); msg != "" {
		h.respondWithError(w, http.StatusUnprocessableEntity, "validation_error", msg)
		return
	}

	book, err := h.store.Update(r.Context(), id, update)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "not_found", "Book not found")
		return
	}
	if errors.Is(err, ErrISBNTaken) {
		h.respondWithError(w, http.StatusConflict, "isbn_conflict", "ISBN already registered to another book")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("book_id", id).Error("Failed to update book")
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to update book")
		return
	}

	h.logger.WithField("book_id", id).Info("Book updated")
	h.respondWithJSON(w, http.StatusOK, book)
}

func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "not_found", "Book not found")
		return
	}
	if errors.Is(err, ErrBookReferenced) {
		h.respondWithError(w, http.StatusConflict, "book_referenced",
			"Book cannot be deleted while orders reference it")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("book_id", id).Error("Failed to delete book")
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to delete book")
		return
	}

	h.logger.WithField("book_id", id).Info("Book deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "catalog-service",
			"error":   "database connection failed",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "catalog-service",
	})
}

func validateBookInput(input models.BookInput) string {
	if input.Title == "" {
		return "title is required"
	}
	if input.Author == "" {
		return "author is required"
	}
	if !input.Price.IsPositive() {
		return "price must be greater than zero"
	}
	if input.Quantity < 0 {
		return "quantity must not be negative"
	}
	if input.ISBN != "" && (len(input.ISBN) < 10 || len(input.ISBN) > 13) {
		return "isbn must be between 10 and 13 characters"
	}
	return ""
}

func validateBookUpdate(update models.BookUpdate) string {
	if update.Title != nil && *update.Title == "" {
		return "title must not be empty"
	}
	if update.Author != nil && *update.Author == "" {
		return "author must not be empty"
	}
	if update.Price != nil && !update.Price.IsPositive() {
		return "price must be greater than zero"
	}
	if update.Quantity != nil && *update.Quantity < 0 {
		return "quantity must not be negative"
	}
	if update.ISBN != nil && *update.ISBN != "" && (len(*update.ISBN) < 10 || len(*update.ISBN) > 13) {
		return "isbn must be between 10 and 13 characters"
	}
	return ""
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
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	h.respondWithJSON(w, code, map[string]errorBody{
		"error": {Code: errCode, Message: message},
	})
}
