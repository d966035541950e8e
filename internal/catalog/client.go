package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/pkg/models"
)

// ErrBookNotFound reports that the catalog answered and the book does not
// exist, as opposed to the catalog being unreachable.
var ErrBookNotFound = errors.New("book not found in catalog")

// ErrISBNConflict reports that the catalog rejected a create because the ISBN
// is already registered.
var ErrISBNConflict = errors.New("isbn already registered in catalog")

// UnavailableError wraps any failure to complete a catalog call: connection
// refused, timeout, or a 5xx answer. Callers treat it as a temporary outage;
// there is no retry.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Client talks to the catalog service over HTTP. Every request carries the
// caller's context and is bounded by the client timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/books/"+bookID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBookNotFound
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &UnavailableError{Err: fmt.Errorf("catalog returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned unexpected status %d", resp.StatusCode)
	}

	var book models.Book
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"book_id":  book.ID,
		"quantity": book.Quantity,
	}).Debug("Retrieved book from catalog")

	return &book, nil
}

func (c *Client) ListBooks(ctx context.Context, skip, limit int) ([]models.Book, error) {
	url := fmt.Sprintf("%s/books?skip=%d&limit=%d", c.baseURL, skip, limit)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &UnavailableError{Err: fmt.Errorf("catalog returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned unexpected status %d", resp.StatusCode)
	}

	var list models.BookList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return list.Books, nil
}

func (c *Client) CreateBook(ctx context.Context, input models.BookInput) (*models.Book, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal book: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/books", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrISBNConflict
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &UnavailableError{Err: fmt.Errorf("catalog returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("catalog returned unexpected status %d", resp.StatusCode)
	}

	var book models.Book
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"book_id": book.ID,
		"title":   book.Title,
	}).Info("Created book in catalog")

	return &book, nil
}
