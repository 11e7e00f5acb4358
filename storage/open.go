package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownBackend is returned for a STORE_BACKEND value Open does not support.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Options selects and configures a ListingStore backend.
type Options struct {
	Backend  string // postgres, mongo or memory
	DBDriver string // database/sql driver for postgres: postgres (lib/pq) or pgx
	DSN      string
	MongoURI string
	MongoDB  string
}

// CheckBackend reports whether name selects a supported backend. It does not
// connect.
func CheckBackend(name string) error {
	switch name {
	case "", "postgres", "mongo", "mongodb", "memory":
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownBackend, name)
}

// Open connects to the configured backend once.
func Open(ctx context.Context, o Options) (ListingStore, error) {
	switch o.Backend {
	case "", "postgres":
		return NewPostgresStore(ctx, o.DBDriver, o.DSN)
	case "mongo", "mongodb":
		return NewMongoStore(ctx, o.MongoURI, o.MongoDB)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, CheckBackend(o.Backend)
	}
}
