package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autoria_scraper/models"
)

const carsSchema = `
CREATE TABLE IF NOT EXISTS cars (
	id SERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	price_usd NUMERIC,
	odometer BIGINT,
	username TEXT,
	phone_number TEXT,
	image_url TEXT,
	images_count INT,
	car_number TEXT,
	car_vin TEXT,
	datetime_found TIMESTAMPTZ DEFAULT NOW()
)`

// PostgresStore persists listings in the cars table, one row per URL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the cars table when it does not exist. Safe to call
// before every run.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, carsSchema); err != nil {
		return fmt.Errorf("create cars table: %w", err)
	}
	return nil
}

// UpsertByURL inserts the listing or overwrites every column of the existing
// row with the same URL. datetime_found is always reset to the database
// clock; the stored value is written back to l.FoundAt.
func (s *PostgresStore) UpsertByURL(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO cars (
			url, title, price_usd, odometer, username, phone_number,
			image_url, images_count, car_number, car_vin, datetime_found
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			price_usd = EXCLUDED.price_usd,
			odometer = EXCLUDED.odometer,
			username = EXCLUDED.username,
			phone_number = EXCLUDED.phone_number,
			image_url = EXCLUDED.image_url,
			images_count = EXCLUDED.images_count,
			car_number = EXCLUDED.car_number,
			car_vin = EXCLUDED.car_vin,
			datetime_found = NOW()
		RETURNING datetime_found`

	err := s.pool.QueryRow(ctx, query,
		l.URL, l.Title, l.PriceUSD, l.Odometer, l.SellerName, l.Phone,
		l.ImageURL, l.ImagesCount, l.PlateNumber, l.VIN,
	).Scan(&l.FoundAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", l.URL, err)
	}
	return nil
}

func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*models.Listing, error) {
	query := `
		SELECT url, title, price_usd, odometer, username, phone_number,
			image_url, images_count, car_number, car_vin, datetime_found
		FROM cars WHERE url = $1`

	var l models.Listing
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&l.URL, &l.Title, &l.PriceUSD, &l.Odometer, &l.SellerName, &l.Phone,
		&l.ImageURL, &l.ImagesCount, &l.PlateNumber, &l.VIN, &l.FoundAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cars`).Scan(&n)
	return n, err
}
