package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/pkg/models"
)

// CatalogWriter is the slice of the catalog client the seeder uses.
type CatalogWriter interface {
	CreateBook(ctx context.Context, input models.BookInput) (*models.Book, error)
}

type Config struct {
	BatchSize    int           `json:"batch_size"`
	DelayBetween time.Duration `json:"delay_between"`
	DryRun       bool          `json:"dry_run"`
	SkipExisting bool          `json:"skip_existing"`
}

type Result struct {
	Total    int           `json:"total"`
	Created  int           `json:"created"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Errors   []SeedError   `json:"errors,omitempty"`
	DryRun   bool          `json:"dry_run"`
}

type SeedError struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// Seeder loads books into the catalog through its HTTP API, in batches with a
// pause in between so a fresh deployment isn't hammered.
type Seeder struct {
	client CatalogWriter
	logger *logrus.Logger
	config Config
}

func New(client CatalogWriter, logger *logrus.Logger) *Seeder {
	return &Seeder{
		client: client,
		logger: logger,
		config: Config{
			BatchSize:    25,
			DelayBetween: 100 * time.Millisecond,
			SkipExisting: true,
		},
	}
}

func (s *Seeder) SetConfig(config Config) {
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	s.config = config
	s.logger.WithFields(logrus.Fields{
		"batch_size":    config.BatchSize,
		"dry_run":       config.DryRun,
		"skip_existing": config.SkipExisting,
	}).Info("Seeder configuration updated")
}

func (s *Seeder) Run(ctx context.Context, books []models.BookInput) (*Result, error) {
	start := time.Now()
	result := &Result{Total: len(books), DryRun: s.config.DryRun}

	s.logger.WithField("count", len(books)).Info("Starting catalog seed")

	for i, book := range books {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if s.config.DryRun {
			s.logger.WithField("title", book.Title).Info("Dry run: would create book")
			result.Skipped++
		} else if err := s.createOne(ctx, book, result); err != nil {
			return result, err
		}

		if (i+1)%s.config.BatchSize == 0 && i+1 < len(books) {
			s.logger.WithFields(logrus.Fields{
				"processed": i + 1,
				"total":     len(books),
			}).Info("Seed batch completed")
			time.Sleep(s.config.DelayBetween)
		}
	}

	result.Duration = time.Since(start)
	s.logger.WithFields(logrus.Fields{
		"created":  result.Created,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	}).Info("Catalog seed completed")

	return result, nil
}

func (s *Seeder) createOne(ctx context.Context, book models.BookInput, result *Result) error {
	_, err := s.client.CreateBook(ctx, book)
	if errors.Is(err, catalog.ErrISBNConflict) && s.config.SkipExisting {
		s.logger.WithFields(logrus.Fields{
			"title": book.Title,
			"isbn":  book.ISBN,
		}).Info("Book already present, skipping")
		result.Skipped++
		return nil
	}
	if err != nil {
		var unavailable *catalog.UnavailableError
		if errors.As(err, &unavailable) {
			// The whole run is pointless if the catalog is down.
			return fmt.Errorf("catalog unreachable, aborting seed: %w", err)
		}
		s.logger.WithError(err).WithField("title", book.Title).Error("Failed to create book")
		result.Failed++
		result.Errors = append(result.Errors, SeedError{Title: book.Title, Error: err.Error()})
		return nil
	}
	result.Created++
	return nil
}

// LoadBooksFile reads a JSON array of book inputs from disk.
func LoadBooksFile(path string) ([]models.BookInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var books []models.BookInput
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return books, nil
}

// SampleBooks is the built-in data set used when no seed file is given.
func SampleBooks() []models.BookInput {
	return []models.BookInput{
		{
			Title:       "The Go Programming Language",
			Author:      "Alan A. A. Donovan",
			ISBN:        "9780134190440",
			Price:       decimal.RequireFromString("44.99"),
			Quantity:    12,
			Description: "The authoritative resource for writing clear and idiomatic Go.",
		},
		{
			Title:       "Designing Data-Intensive Applications",
			Author:      "Martin Kleppmann",
			ISBN:        "9781449373320",
			Price:       decimal.RequireFromString("54.99"),
			Quantity:    7,
			Description: "The big ideas behind reliable, scalable, and maintainable systems.",
		},
		{
			Title:       "Clean Architecture",
			Author:      "Robert C. Martin",
			ISBN:        "9780134494166",
			Price:       decimal.RequireFromString("34.99"),
			Quantity:    5,
		},
		{
			Title:       "Site Reliability Engineering",
			Author:      "Betsy Beyer",
			ISBN:        "9781491929124",
			Price:       decimal.RequireFromString("49.99"),
			Quantity:    9,
			Description: "How Google runs production systems.",
		},
		{
			Title:    "The Mythical Man-Month",
			Author:   "Frederick P. Brooks Jr.",
			ISBN:     "9780201835953",
			Price:    decimal.RequireFromString("39.99"),
			Quantity: 3,
		},
	}
}
