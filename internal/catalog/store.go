package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bookstore/services/pkg/models"
)

var (
	ErrNotFound       = errors.New("book not found")
	ErrISBNTaken      = errors.New("isbn already registered")
	ErrBookReferenced = errors.New("book is referenced by an order")
)

// Store owns the books table. Orders hold a database-level reference to
// books(id), which is what makes deletes of referenced books fail.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS books (
			id VARCHAR(36) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			author VARCHAR(255) NOT NULL,
			isbn VARCHAR(13) UNIQUE,
			price DECIMAL(10,2) NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context, skip, limit int, search string) ([]models.Book, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE title ILIKE $1 OR author ILIKE $1 OR isbn ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, author, isbn, price, quantity, description, created_at, updated_at
		FROM books` + where + ` ORDER BY id`
	if search != "" {
		query += ` OFFSET $2 LIMIT $3`
	} else {
		query += ` OFFSET $1 LIMIT $2`
	}
	args = append(args, skip, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, *book)
	}
	return books, total, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, isbn, price, quantity, description, created_at, updated_at
		FROM books WHERE id = $1`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return book, err
}

func (s *Store) Create(ctx context.Context, input models.BookInput) (*models.Book, error) {
	now := time.Now().UTC()
	book := &models.Book{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Author:      input.Author,
		ISBN:        input.ISBN,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, isbn, price, quantity, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		book.ID, book.Title, book.Author, nullIfEmpty(book.ISBN),
		book.Price, book.Quantity, book.Description, book.CreatedAt, book.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, ErrISBNTaken
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (s *Store) Update(ctx context.Context, id string, update models.BookUpdate) (*models.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, title, author, isbn, price, quantity, description, created_at, updated_at
		FROM books WHERE id = $1 FOR UPDATE`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		book.Title = *update.Title
	}
	if update.Author != nil {
		book.Author = *update.Author
	}
	if update.ISBN != nil {
		book.ISBN = *update.ISBN
	}
	if update.Price != nil {
		book.Price = *update.Price
	}
	if update.Quantity != nil {
		book.Quantity = *update.Quantity
	}
	if update.Description != nil {
		book.Description = *update.Description
	}
	book.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE books SET title=$2, author=$3, isbn=$4, price=$5, quantity=$6, description=$7, updated_at=$8
		WHERE id=$1`,
		book.ID, book.Title, book.Author, nullIfEmpty(book.ISBN),
		book.Price, book.Quantity, book.Description, book.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, ErrISBNTaken
	}
	if err != nil {
		return nil, err
	}
	return book, tx.Commit()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return ErrBookReferenced
	}
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var book models.Book
	var isbn sql.NullString
	err := row.Scan(&book.ID, &book.Title, &book.Author, &isbn,
		&book.Price, &book.Quantity, &book.Description, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return nil, err
	}
	book.ISBN = isbn.String
	return &book, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
