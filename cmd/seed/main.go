package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/internal/seed"
	"github.com/bookstore/services/pkg/models"
)

func main() {
	_ = godotenv.Load()

	var (
		catalogURL = flag.String("catalog-url", envOr("CATALOG_SERVICE_URL", "http://localhost:8000"), "base URL of the catalog service")
		file       = flag.String("file", "", "JSON file with books to load (defaults to built-in sample set)")
		dryRun     = flag.Bool("dry-run", false, "log what would be created without writing anything")
		batchSize  = flag.Int("batch", 25, "books per batch")
		delay      = flag.Duration("delay", 100*time.Millisecond, "pause between batches")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	var books []models.BookInput
	if *file != "" {
		var err error
		books, err = seed.LoadBooksFile(*file)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load seed file")
		}
	} else {
		books = seed.SampleBooks()
	}

	client := catalog.NewClient(*catalogURL, 10*time.Second, logger)
	seeder := seed.New(client, logger)
	seeder.SetConfig(seed.Config{
		BatchSize:    *batchSize,
		DelayBetween: *delay,
		DryRun:       *dryRun,
		SkipExisting: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := seeder.Run(ctx, books)
	if err != nil {
		logger.WithError(err).Fatal("Seed aborted")
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
