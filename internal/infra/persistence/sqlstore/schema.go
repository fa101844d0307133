package sqlstore

import (
	"context"
	"datamapper/internal/query"
	"datamapper/pkg/domain"
	"datamapper/pkg/metadata"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// MigrationTable records applied schema migrations.
const MigrationTable = "datamapper_migrations"

// column is one physical column of a table.
type column struct {
	name     string
	property string
	// ref is set for reference fields, stored as the flattened join value.
	ref *metadata.ReferenceField
}

// tableSchema is the physical layout derived from entity metadata.
type tableSchema struct {
	md       domain.EntityMetadata
	name     string // prefixed, unquoted
	idColumn string
	columns  []column
}

// columnFor returns the column storing property.
func (t tableSchema) columnFor(property string) (column, bool) {
	for _, c := range t.columns {
		if c.property == property {
			return c, true
		}
	}
	return column{}, false
}

// buildSchema maps every declared field onto a column. Reference fields use
// the property name because their declared column names the key column of
// the related table.
func (s *Store) buildSchema(table string) (tableSchema, error) {
	md, err := s.manager.ByTable(table)
	if err != nil {
		return tableSchema{}, err
	}
	refs, err := metadata.ReferenceFields(s.manager, table)
	if err != nil {
		return tableSchema{}, err
	}
	byProperty := make(map[string]metadata.ReferenceField, len(refs))
	for _, ref := range refs {
		byProperty[ref.Field.Property] = ref
	}
	sc := tableSchema{md: md, name: s.prefix + md.TableName}
	used := make(map[string]string, len(md.Fields))
	for _, f := range md.Fields {
		c := column{name: f.Column, property: f.Property}
		if ref, ok := byProperty[f.Property]; ok {
			c.name = f.Property
			c.ref = &ref
		}
		if other, dup := used[c.name]; dup {
			return tableSchema{}, fmt.Errorf("%w: table %s maps %s and %s onto column %s", domain.ErrMalformedInput, table, other, f.Property, c.name)
		}
		used[c.name] = f.Property
		if f.Property == md.IDProperty {
			sc.idColumn = c.name
		}
		sc.columns = append(sc.columns, c)
	}
	return sc, nil
}

func (s *Store) keyType() string {
	if s.driver == DriverMySQL {
		return "VARCHAR(191)"
	}
	return "TEXT"
}

// migrations returns one create migration per table followed by one add
// column migration per non-key column. Ids sort so that a table is created
// before its columns are added.
func (s *Store) migrations(schemas []tableSchema) []*migrate.Migration {
	var out []*migrate.Migration
	for _, sc := range schemas {
		table := query.QuoteIdentifier(sc.name)
		out = append(out, &migrate.Migration{
			Id:   sc.name + ".0-create",
			Up:   []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s PRIMARY KEY)", table, query.QuoteIdentifier(sc.idColumn), s.keyType())},
			Down: []string{"DROP TABLE " + table},
		})
		for _, c := range sc.columns {
			if c.name == sc.idColumn {
				continue
			}
			col := query.QuoteIdentifier(c.name)
			out = append(out, &migrate.Migration{
				Id:   sc.name + ".1-" + c.name,
				Up:   []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", table, col)},
				Down: []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, col)},
			})
		}
	}
	return out
}

func (s *Store) migrateDialect() string {
	switch s.driver {
	case DriverPostgres:
		return "postgres"
	case DriverMySQL:
		return "mysql"
	default:
		return "sqlite3"
	}
}

// Migrate creates or extends the tables of every registered entity and
// returns the number of migrations applied.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, domain.ErrDestroyed
	}
	return s.applyMigrations(ctx)
}

// applyMigrations runs with s.mu held.
func (s *Store) applyMigrations(ctx context.Context) (int, error) {
	tables := s.manager.Tables()
	schemas := make([]tableSchema, 0, len(tables))
	for _, table := range tables {
		sc, err := s.buildSchema(table)
		if err != nil {
			return 0, fmt.Errorf("schema %s: %w", table, err)
		}
		schemas = append(schemas, sc)
	}
	set := migrate.MigrationSet{TableName: s.prefix + MigrationTable}
	src := &migrate.MemoryMigrationSource{Migrations: s.migrations(schemas)}
	n, err := set.ExecContext(ctx, s.db.DB, s.migrateDialect(), src, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		s.logger.Debug("schema migrated", "applied", n, "tables", len(schemas))
	}
	s.schemaMu.Lock()
	for _, sc := range schemas {
		s.schemas[sc.md.TableName] = sc
	}
	s.schemaMu.Unlock()
	s.pending = false
	return n, nil
}
