// Package persistence selects a concrete client store backend.
package persistence

import (
	"context"
	"fmt"

	"caseboard/internal/infra/persistence/memory"
	"caseboard/internal/infra/persistence/postgres"
	"caseboard/internal/infra/persistence/sqlite"
	"caseboard/pkg/domain"
)

// Driver identifies a concrete storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Options carries backend-specific settings.
type Options struct {
	SQLitePath  string
	PostgresDSN string
}

// Open constructs the store for the requested driver. An empty driver
// defaults to sqlite.
func Open(ctx context.Context, driver Driver, opts Options) (domain.ClientStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(opts.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
