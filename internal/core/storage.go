// Package core wires persisters from process configuration and decorates
// them with instrumentation.
package core

import (
	"context"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/internal/infra/persistence/sqlstore"
	"datamapper/internal/sequence"
	"datamapper/pkg/domain"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageDriver identifies a concrete persister implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMySQL    StorageDriver = "mysql"    // MySQL / MariaDB server
)

// Persister aliases the domain contract for callers that only import core.
type Persister = domain.Persister

type openConfig struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// Option customizes OpenPersister.
type Option func(*openConfig)

// WithLogger routes SQL statement debug logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *openConfig) { c.logger = logger }
}

// WithRegisterer wraps the opened persister in an InstrumentedPersister
// whose collectors are registered with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *openConfig) { c.registerer = reg }
}

// OpenPersister selects a backend using environment variables.
// Defaults to memory when unset.
//
//	DATAMAPPER_PERSISTER_DRIVER: memory|sqlite|postgres|mysql (default memory)
//	DATAMAPPER_SQLITE_PATH: path to sqlite file (default ./datamapper.db)
//	DATAMAPPER_POSTGRES_DSN: postgres DSN when driver=postgres
//	DATAMAPPER_MYSQL_DSN: mysql DSN when driver=mysql
//	DATAMAPPER_TABLE_PREFIX: prefix for every SQL table name
//	DATAMAPPER_ID_MODE: string|number|uuid (default string)
func OpenPersister(ctx context.Context, opts ...Option) (Persister, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := openBackend(ctx, cfg)
	if err != nil || cfg.registerer == nil {
		return p, err
	}
	instrumented, err := NewInstrumentedPersister(p, cfg.registerer)
	if err != nil {
		_ = p.Destroy(ctx)
		return nil, fmt.Errorf("instrument persister: %w", err)
	}
	return instrumented, nil
}

func openBackend(ctx context.Context, cfg openConfig) (Persister, error) {
	mode, err := sequence.ParseMode(os.Getenv("DATAMAPPER_ID_MODE"))
	if err != nil {
		return nil, err
	}
	driver := os.Getenv("DATAMAPPER_PERSISTER_DRIVER")
	if driver == "" {
		driver = string(StorageMemory)
	}
	sqlCfg := sqlstore.Config{
		TablePrefix: os.Getenv("DATAMAPPER_TABLE_PREFIX"),
		IDMode:      mode,
		Logger:      cfg.logger,
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(memory.Options{IDMode: mode}), nil
	case StorageSQLite:
		sqlCfg.Driver = sqlstore.DriverSQLite
		sqlCfg.DSN = os.Getenv("DATAMAPPER_SQLITE_PATH")
	case StoragePostgres:
		sqlCfg.Driver = sqlstore.DriverPostgres
		sqlCfg.DSN = os.Getenv("DATAMAPPER_POSTGRES_DSN")
	case StorageMySQL:
		sqlCfg.Driver = sqlstore.DriverMySQL
		sqlCfg.DSN = os.Getenv("DATAMAPPER_MYSQL_DSN")
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %s", domain.ErrMalformedInput, driver)
	}
	return sqlstore.Open(ctx, sqlCfg)
}
