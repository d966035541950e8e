package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN renders a lib/pq connection string. Both services point at the same
// physical database; each owns its own table.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

type CatalogConfig struct {
	Port string
	DB   Database
}

type OrderConfig struct {
	Port           string
	DB             Database
	CatalogURL     string
	CatalogTimeout time.Duration
}

func LoadCatalog() CatalogConfig {
	return CatalogConfig{
		Port: getEnv("CATALOG_SERVICE_PORT", "8000"),
		DB:   loadDatabase(),
	}
}

func LoadOrder() OrderConfig {
	return OrderConfig{
		Port:           getEnv("ORDER_SERVICE_PORT", "8001"),
		DB:             loadDatabase(),
		CatalogURL:     getEnv("CATALOG_SERVICE_URL", "http://localhost:8000"),
		CatalogTimeout: getDuration("CATALOG_TIMEOUT_SECONDS", 10) * time.Second,
	}
}

func loadDatabase() Database {
	return Database{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "bookstore"),
		Password: getEnv("DB_PASSWORD", "bookstore"),
		Name:     getEnv("DB_NAME", "bookstore"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultSeconds)
}
