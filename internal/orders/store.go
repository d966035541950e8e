package orders

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/bookstore/services/pkg/models"
)

var ErrNotFound = errors.New("order not found")

// Store owns the orders table. The book_id column references books(id) with
// restrict semantics: a book cannot be deleted while orders point at it. The
// books table belongs to the catalog service, so EnsureSchema can only succeed
// once that service has created it.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			book_id VARCHAR(36) NOT NULL REFERENCES books(id),
			book_title VARCHAR(255) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			customer_email VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price DECIMAL(10,2) NOT NULL,
			total_price DECIMAL(10,2) NOT NULL,
			status VARCHAR(50) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Insert(ctx context.Context, order *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, book_id, book_title, customer_name, customer_email,
			quantity, unit_price, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.BookID, order.BookTitle, order.CustomerName, order.CustomerEmail,
		order.Quantity, order.UnitPrice, order.TotalPrice, order.Status,
		order.CreatedAt, order.UpdatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, book_id, book_title, customer_name, customer_email,
			quantity, unit_price, total_price, status, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

func (s *Store) List(ctx context.Context, skip, limit int, customerEmail string, status models.OrderStatus) ([]models.Order, int, error) {
	where := ""
	args := []interface{}{}
	if customerEmail != "" {
		args = append(args, customerEmail)
		where += " AND customer_email = $1"
	}
	if status != "" {
		args = append(args, string(status))
		where += " AND status = $" + strconv.Itoa(len(args))
	}
	if where != "" {
		where = " WHERE" + where[4:]
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, skip, limit)
	query := `SELECT id, book_id, book_title, customer_name, customer_email,
			quantity, unit_price, total_price, status, created_at, updated_at
		FROM orders` + where +
		` ORDER BY created_at DESC OFFSET $` + strconv.Itoa(len(args)-1) + ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *order)
	}
	return out, total, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, book_id, book_title, customer_name, customer_email,
			quantity, unit_price, total_price, status, created_at, updated_at`,
		id, string(status), now)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	err := row.Scan(&order.ID, &order.BookID, &order.BookTitle,
		&order.CustomerName, &order.CustomerEmail, &order.Quantity,
		&order.UnitPrice, &order.TotalPrice, &order.Status,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

