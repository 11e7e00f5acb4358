package storage

import (
	"context"
	"errors"

	"imobot/models"
)

// ErrConflict is returned by Insert when the listing id is already stored.
// Callers treat it as a no-op.
var ErrConflict = errors.New("storage: listing already exists")

// Store is the durable dedup contract: an existence check keyed by listing id
// and an insert that enforces id uniqueness.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, l *models.Listing) error
	Close() error
}

// Reader is the read side used by the control API.
type Reader interface {
	Stats(ctx context.Context) (*models.SiteStats, error)
	Recent(ctx context.Context, limit int) ([]*models.Listing, error)
}

// ListingStore is a Store that can also be queried.
type ListingStore interface {
	Store
	Reader
}

// CycleReportWriter persists per-target cycle outcomes.
type CycleReportWriter interface {
	WriteCycle(summary *models.CycleSummary) error
	Close() error
}
