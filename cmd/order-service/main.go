package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/bookstore/services/internal/catalog"
	"github.com/bookstore/services/internal/config"
	"github.com/bookstore/services/internal/orders"
	"github.com/bookstore/services/internal/websocket"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.LoadOrder()

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		time.Sleep(2 * time.Second)
	}

	store := orders.NewStore(db)

	// The orders table references books(id), which the catalog service
	// creates. Retry until that relation exists so startup order between the
	// two services doesn't matter.
	for i := 0; ; i++ {
		err := store.EnsureSchema(context.Background())
		if err == nil {
			break
		}
		if i >= 30 {
			logger.WithError(err).Fatal("Failed to create orders table")
		}
		logger.WithError(err).Info("Waiting for catalog schema...")
		time.Sleep(2 * time.Second)
	}

	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout, logger)
	logger.WithField("url", cfg.CatalogURL).Info("Catalog client configured")

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	workflow := orders.NewWorkflow(catalogClient, store, logger)
	handler := orders.NewHandler(workflow, store, catalogClient, logger)
	handler.SetWebSocketHub(wsHub)

	router := mux.NewRouter()
	handler.Register(router)
	router.HandleFunc("/ws", wsHub.HandleWebSocket)
	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Info("Request received")

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}
