package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing handle.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the embedded schema. It is idempotent.
func (s *Store) RunMigrations(ctx context.Context) error {
	return s.exec(ctx, schema)
}

// RunMigrationsFile applies a schema read from disk instead of the embedded one.
func (s *Store) RunMigrationsFile(ctx context.Context, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	return s.exec(ctx, string(content))
}

func (s *Store) exec(ctx context.Context, stmt string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func clampLimit(limit int, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

type Product struct {
	ProductID      string              `json:"product_id"`
	Name           string              `json:"name"`
	Brand          string              `json:"brand,omitempty"`
	CurrentPrice   decimal.Decimal     `json:"current_price"`
	OriginalPrice  decimal.NullDecimal `json:"original_price"`
	Discount       string              `json:"discount,omitempty"`
	URL            string              `json:"url,omitempty"`
	FullURL        string              `json:"full_url,omitempty"`
	Image          string              `json:"image,omitempty"`
	Currency       string              `json:"currency"`
	SavingsAmount  decimal.NullDecimal `json:"savings_amount"`
	SavingsPercent string              `json:"savings_percent,omitempty"`
	FirstSeenAt    time.Time           `json:"first_seen_at"`
	LastSeenAt     time.Time           `json:"last_seen_at"`
}

// Save upserts an emitted record keyed by product id.
func (s *Store) Save(ctx context.Context, rec *product.Record) error {
	if rec.ProductID == "" || !rec.CurrentPrice.Valid {
		return fmt.Errorf("store: record %s lacks product id or price", rec.Label())
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO products (product_id, name, brand, current_price, original_price, discount, url, full_url, image, currency, savings_amount, savings_percent, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (product_id) DO UPDATE SET
    name = EXCLUDED.name,
    brand = COALESCE(EXCLUDED.brand, products.brand),
    current_price = EXCLUDED.current_price,
    original_price = EXCLUDED.original_price,
    discount = EXCLUDED.discount,
    url = EXCLUDED.url,
    full_url = EXCLUDED.full_url,
    image = COALESCE(EXCLUDED.image, products.image),
    currency = EXCLUDED.currency,
    savings_amount = EXCLUDED.savings_amount,
    savings_percent = EXCLUDED.savings_percent,
    last_seen_at = NOW()
`,
		rec.ProductID,
		rec.Name,
		nullString(rec.Brand),
		rec.CurrentPrice.Decimal,
		rec.OriginalPrice,
		nullString(rec.Discount),
		nullString(rec.URL),
		nullString(rec.FullURL),
		nullString(rec.Image),
		rec.Currency,
		rec.SavingsAmount,
		nullString(rec.SavingsPercent),
	)
	if err != nil {
		return fmt.Errorf("save product %s: %w", rec.ProductID, err)
	}
	return nil
}

// ListProducts returns products by most recently seen, with the total row count.
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]Product, int, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
    product_id,
    name,
    brand,
    current_price,
    original_price,
    discount,
    url,
    full_url,
    image,
    currency,
    savings_amount,
    savings_percent,
    first_seen_at,
    last_seen_at
FROM products
ORDER BY last_seen_at DESC, product_id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var (
			p              Product
			brand          sql.NullString
			discount       sql.NullString
			url            sql.NullString
			fullURL        sql.NullString
			image          sql.NullString
			savingsPercent sql.NullString
		)

		if err := rows.Scan(
			&p.ProductID,
			&p.Name,
			&brand,
			&p.CurrentPrice,
			&p.OriginalPrice,
			&discount,
			&url,
			&fullURL,
			&image,
			&p.Currency,
			&p.SavingsAmount,
			&savingsPercent,
			&p.FirstSeenAt,
			&p.LastSeenAt,
		); err != nil {
			return nil, 0, err
		}

		p.Brand = brand.String
		p.Discount = discount.String
		p.URL = url.String
		p.FullURL = fullURL.String
		p.Image = image.String
		p.SavingsPercent = savingsPercent.String

		products = append(products, p)
	}
	return products, total, rows.Err()
}

// DeleteOldProducts removes products not seen within olderThan.
func (s *Store) DeleteOldProducts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM products
WHERE last_seen_at < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
