// Package sqlstore provides a relational persister. Entities are stored one
// row per entity with JSON-encoded column values; relations are resolved with
// builder-generated LEFT JOIN selects inside the calling transaction.
package sqlstore

import (
	"context"
	"datamapper/internal/sequence"
	"datamapper/pkg/domain"
	"datamapper/pkg/metadata"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Persister = (*Store)(nil)

// Supported driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

const (
	defaultSQLitePath = "datamapper.db"
	defaultCacheSize  = 256
)

var (
	sqlOpen = sqlx.Open
	openMu  sync.Mutex
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config selects the database and naming of a Store.
type Config struct {
	Driver      string
	DSN         string
	TablePrefix string
	IDMode      sequence.Mode
	// Logger receives debug statement logs; nil discards them.
	Logger *slog.Logger
}

// Store implements domain.Persister on top of database/sql.
type Store struct {
	db      *sqlx.DB
	driver  string
	prefix  string
	idMode  sequence.Mode
	logger  *slog.Logger
	manager *metadata.Manager
	stmts   *statementCache

	// mu serializes migrations and guards pending and destroyed.
	mu        sync.Mutex
	pending   bool
	destroyed bool

	// schemaMu is never held across database calls, so lookups inside an
	// open transaction cannot wait on a migration.
	schemaMu sync.Mutex
	schemas  map[string]tableSchema
}

// Open connects to the configured database. Tables are created lazily by
// Migrate, which every operation runs when metadata changed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := resolveDSN(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	openMu.Lock()
	db, err := sqlOpen(cfg.Driver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// a single connection serializes writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mode := cfg.IDMode
	if mode == "" {
		mode = sequence.ModeString
	}
	return &Store{
		db:      db,
		driver:  cfg.Driver,
		prefix:  cfg.TablePrefix,
		idMode:  mode,
		logger:  logger,
		manager: metadata.NewManager(),
		stmts:   newStatementCache(defaultCacheSize),
		schemas: make(map[string]tableSchema),
	}, nil
}

func resolveDSN(driver, dsn string) (string, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return "", fmt.Errorf("create dirs: %w", err)
			}
		}
		return dsn, nil
	case DriverPostgres:
		if dsn == "" {
			return "", fmt.Errorf("%w: postgres dsn is required", domain.ErrMalformedInput)
		}
		return dsn, nil
	case DriverMySQL:
		return mysqlDSN(dsn)
	default:
		return "", fmt.Errorf("%w: unsupported sql driver %q", domain.ErrMalformedInput, driver)
	}
}

// mysqlDSN enables ANSI_QUOTES so double-quoted identifiers are accepted.
func mysqlDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("%w: mysql dsn is required", domain.ErrMalformedInput)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	cfg.Params["sql_mode"] = "'ANSI_QUOTES'"
	return cfg.FormatDSN(), nil
}

// DB exposes the underlying connection for integration testing hooks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Manager exposes the metadata registered with the store.
func (s *Store) Manager() *metadata.Manager { return s.manager }

// SetupEntityMetadata registers or replaces the metadata of one table. The
// schema is migrated before the next operation.
func (s *Store) SetupEntityMetadata(md domain.EntityMetadata) error {
	if err := s.manager.Setup(md); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
	s.schemaMu.Lock()
	s.schemas = make(map[string]tableSchema)
	s.schemaMu.Unlock()
	s.stmts.clear()
	return nil
}

// Destroy closes the connection. Subsequent calls fail with domain.ErrDestroyed.
func (s *Store) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.driver, err)
	}
	return nil
}

// ready migrates pending metadata and returns the schema of table. found is
// false when the table has no registered metadata.
func (s *Store) ready(ctx context.Context, table string) (tableSchema, bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return tableSchema{}, false, domain.ErrDestroyed
	}
	if s.pending {
		if _, err := s.applyMigrations(ctx); err != nil {
			s.mu.Unlock()
			return tableSchema{}, false, err
		}
	}
	s.mu.Unlock()
	sc, err := s.lookupSchema(table)
	if errors.Is(err, domain.ErrMetadataNotFound) {
		return tableSchema{}, false, nil
	}
	if err != nil {
		return tableSchema{}, false, err
	}
	return sc, true, nil
}

// lookupSchema never migrates, so it is safe inside an open transaction.
func (s *Store) lookupSchema(table string) (tableSchema, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if sc, ok := s.schemas[table]; ok {
		return sc, nil
	}
	sc, err := s.buildSchema(table)
	if err != nil {
		return tableSchema{}, err
	}
	s.schemas[table] = sc
	return sc, nil
}

// schema is ready for operations that require registered metadata.
func (s *Store) schema(ctx context.Context, table string) (tableSchema, error) {
	sc, found, err := s.ready(ctx, table)
	if err != nil {
		return tableSchema{}, err
	}
	if !found {
		return tableSchema{}, fmt.Errorf("%w: table %s", domain.ErrMetadataNotFound, table)
	}
	return sc, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
