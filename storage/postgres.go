package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"imobot/models"
)

const uniqueViolation = "23505"

// PostgresStore persists discovered listings to PostgreSQL. It works with
// either the lib/pq ("postgres") or the pgx ("pgx") database/sql driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, pings it once and runs the schema
// migration. Startup retries are the caller's concern.
func NewPostgresStore(ctx context.Context, driver, dsn string) (*PostgresStore, error) {
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			id       TEXT        PRIMARY KEY,
			site     TEXT        NOT NULL DEFAULT '',
			title    TEXT        NOT NULL DEFAULT '',
			url      TEXT        NOT NULL DEFAULT '',
			price    TEXT        NOT NULL DEFAULT '',
			found_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_site     ON properties(site);
		CREATE INDEX IF NOT EXISTS idx_properties_found_at ON properties(found_at);
	`)
	return err
}

func (ps *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := ps.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM properties WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: exists %q: %w", id, err)
	}
	return exists, nil
}

// Insert stores l. A row that already exists yields ErrConflict.
func (ps *PostgresStore) Insert(ctx context.Context, l *models.Listing) error {
	res, err := ps.db.ExecContext(ctx, `
		INSERT INTO properties (id, site, title, url, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, l.ID, l.Site, l.Title, l.URL, l.Price)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("postgres: insert %q: %w", l.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: insert %q: rows affected: %w", l.ID, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (ps *PostgresStore) Stats(ctx context.Context) (*models.SiteStats, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT site, COUNT(*) FROM properties GROUP BY site ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}
	defer rows.Close()

	stats := &models.SiteStats{BySite: make(map[string]int)}
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		stats.BySite[site] = n
		stats.Total += n
	}
	return stats, rows.Err()
}

// Recent returns the most recently discovered listings, newest first.
func (ps *PostgresStore) Recent(ctx context.Context, limit int) ([]*models.Listing, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, site, title, url, price, found_at
		FROM properties
		ORDER BY found_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(&l.ID, &l.Site, &l.Title, &l.URL, &l.Price, &l.FoundAt); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// isUniqueViolation recognises a duplicate-key error from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
