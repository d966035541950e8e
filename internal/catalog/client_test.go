package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func TestClientGetBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/abc" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc","title":"Dune","author":"Frank Herbert","price":"12.50","quantity":4}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testLogger())
	book, err := client.GetBook(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if book.Title != "Dune" {
		t.Errorf("Expected title Dune, got %q", book.Title)
	}
	if book.Quantity != 4 {
		t.Errorf("Expected quantity 4, got %d", book.Quantity)
	}
}

func TestClientGetBookNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testLogger())
	_, err := client.GetBook(context.Background(), "missing")
	if !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("Expected ErrBookNotFound, got %v", err)
	}
}

func TestClientGetBookServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testLogger())
	_, err := client.GetBook(context.Background(), "abc")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected UnavailableError for a 5xx, got %v", err)
	}
}

func TestClientGetBookConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Nothing listens anymore

	client := NewClient(server.URL, time.Second, testLogger())
	_, err := client.GetBook(context.Background(), "abc")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected UnavailableError, got %v", err)
	}
}

func TestClientGetBookTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	client := NewClient(server.URL, 50*time.Millisecond, testLogger())
	_, err := client.GetBook(context.Background(), "abc")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected UnavailableError on timeout, got %v", err)
	}
}

func TestClientCreateBookConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testLogger())
	_, err := client.CreateBook(context.Background(), models.BookInput{Title: "Dup", Author: "A", ISBN: "1234567890"})
	if !errors.Is(err, ErrISBNConflict) {
		t.Fatalf("Expected ErrISBNConflict, got %v", err)
	}
}

func TestClientListBooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("Expected limit 50, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":2,"books":[{"id":"a","title":"A"},{"id":"b","title":"B"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testLogger())
	books, err := client.ListBooks(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if len(books) != 2 {
		t.Errorf("Expected 2 books, got %d", len(books))
	}
}
