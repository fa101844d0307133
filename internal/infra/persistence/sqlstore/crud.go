package sqlstore

import (
	"context"
	"database/sql"
	"datamapper/internal/relation"
	"datamapper/internal/sequence"
	"datamapper/pkg/domain"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func (s *Store) idFilter(sc tableSchema, ids ...any) (filter, error) {
	f := filter{column: sc.idColumn, args: make([]any, 0, len(ids))}
	for _, id := range ids {
		enc, err := encodeValue(id)
		if err != nil {
			return filter{}, err
		}
		f.args = append(f.args, enc)
	}
	return f, nil
}

func (s *Store) propertyFilter(sc tableSchema, property string, value any) (filter, error) {
	c, ok := sc.columnFor(property)
	if !ok {
		return filter{}, fmt.Errorf("%w: table %s declares no field %s", domain.ErrMalformedInput, sc.md.TableName, property)
	}
	if value == nil {
		return filter{column: c.name, isNull: true}, nil
	}
	enc, err := encodeColumn(c, value)
	if err != nil {
		return filter{}, err
	}
	return filter{column: c.name, args: []any{enc}}, nil
}

func (s *Store) exec(ctx context.Context, tx *sqlx.Tx, text string, args ...any) (sql.Result, error) {
	s.logger.DebugContext(ctx, "sql exec", "statement", text, "args", len(args))
	res, err := tx.ExecContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", text, err)
	}
	return res, nil
}

func (s *Store) queryEntities(ctx context.Context, tx *sqlx.Tx, sc tableSchema, text string, args ...any) ([]domain.Entity, error) {
	s.logger.DebugContext(ctx, "sql query", "statement", text, "args", len(args))
	rows, err := tx.QueryxContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", text, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Entity
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", sc.name, err)
		}
		e, err := rowEntity(sc, row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", sc.name, err)
	}
	return out, nil
}

func (s *Store) selectRows(ctx context.Context, tx *sqlx.Tx, sc tableSchema, f filter) ([]domain.Entity, error) {
	text, err := s.selectText(sc, f)
	if err != nil {
		return nil, err
	}
	return s.queryEntities(ctx, tx, sc, text, f.args...)
}

func (s *Store) countRows(ctx context.Context, tx *sqlx.Tx, sc tableSchema, f filter) (int, error) {
	text, err := s.countText(sc, f)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "sql query", "statement", text, "args", len(f.args))
	var n int
	if err := tx.GetContext(ctx, &n, text, f.args...); err != nil {
		return 0, fmt.Errorf("query %q: %w", text, err)
	}
	return n, nil
}

func (s *Store) populator(tx *sqlx.Tx) *relation.Populator {
	return relation.NewPopulator(s.manager, txSource{store: s, tx: tx})
}

// loadPopulated reads the row stored under id and materializes its relations.
func (s *Store) loadPopulated(ctx context.Context, tx *sqlx.Tx, sc tableSchema, id any) (domain.Entity, error) {
	f, err := s.idFilter(sc, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.selectRows(ctx, tx, sc, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s vanished after write", domain.ErrIntegrity, sc.md.TableName, domain.FormatID(id))
	}
	return s.populator(tx).Populate(ctx, sc.md, rows[0])
}

func (s *Store) writeRow(ctx context.Context, tx *sqlx.Tx, sc tableSchema, e domain.Entity, exists bool) error {
	columns, args, err := entityArgs(sc, e)
	if err != nil {
		return err
	}
	var text string
	if exists {
		text, err = s.updateText(sc, columns)
		id, _ := sc.md.ID(e)
		enc, encErr := encodeValue(id)
		if encErr != nil {
			return encErr
		}
		args = append(args, enc)
	} else {
		text, err = s.insertText(sc, columns)
	}
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, tx, text, args...)
	return err
}

func (s *Store) idExists(ctx context.Context, tx *sqlx.Tx, sc tableSchema, id any) (bool, error) {
	f, err := s.idFilter(sc, id)
	if err != nil {
		return false, err
	}
	n, err := s.countRows(ctx, tx, sc, f)
	return n > 0, err
}

// freshID draws sequence ids until one is free in the table and the batch.
// Rows written by another process push the shared counter forward.
func (s *Store) freshID(ctx context.Context, tx *sqlx.Tx, sc tableSchema, batch map[string]struct{}) (any, error) {
	for {
		id := sequence.NewID(s.idMode)
		if _, taken := batch[domain.IDKey(id)]; taken {
			continue
		}
		exists, err := s.idExists(ctx, tx, sc, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return id, nil
		}
	}
}

// Insert stores entities in one transaction, assigning ids from the process
// sequence where missing. Any duplicate rolls back the whole batch.
func (s *Store) Insert(ctx context.Context, table string, entities ...domain.Entity) (domain.Entity, error) {
	sc, err := s.schema(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: insert into %s without entities", domain.ErrMalformedInput, table)
	}
	var out domain.Entity
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]struct{}, len(entities))
		var firstID any
		for i, e := range entities {
			cp := e.Clone()
			if cp == nil {
				cp = domain.Entity{}
			}
			if !domain.ValidID(cp[sc.md.IDProperty]) {
				id, err := s.freshID(ctx, tx, sc, seen)
				if err != nil {
					return err
				}
				cp[sc.md.IDProperty] = id
			}
			id, ok := sc.md.ID(cp)
			if !ok {
				return fmt.Errorf("%w: %s entity", domain.ErrMissingID, table)
			}
			sequence.Observe(id)
			key := domain.IDKey(id)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: %s %s repeated in batch", domain.ErrDuplicateID, table, domain.FormatID(id))
			}
			seen[key] = struct{}{}
			exists, err := s.idExists(ctx, tx, sc, id)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s %s already exists", domain.ErrDuplicateID, table, domain.FormatID(id))
			}
			if err := s.writeRow(ctx, tx, sc, cp, false); err != nil {
				return err
			}
			if i == 0 {
				firstID = id
			}
		}
		out, err = s.loadPopulated(ctx, tx, sc, firstID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the row with the entity's id or inserts it when unknown.
func (s *Store) Update(ctx context.Context, table string, entity domain.Entity) (domain.Entity, error) {
	sc, err := s.schema(ctx, table)
	if err != nil {
		return nil, err
	}
	cp := entity.Clone()
	id, ok := sc.md.ID(cp)
	if !ok {
		return nil, fmt.Errorf("%w: update %s requires %s", domain.ErrMissingID, table, sc.md.IDProperty)
	}
	sequence.Observe(id)
	var out domain.Entity
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.idExists(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		if err := s.writeRow(ctx, tx, sc, cp, exists); err != nil {
			return err
		}
		out, err = s.loadPopulated(ctx, tx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) find(ctx context.Context, table string, build func(tableSchema) (filter, error)) ([]domain.Entity, error) {
	sc, err := s.schema(ctx, table)
	if err != nil {
		return nil, err
	}
	f, err := build(sc)
	if err != nil {
		return nil, err
	}
	var out []domain.Entity
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.selectRows(ctx, tx, sc, f)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		out, err = s.populator(tx).PopulateAll(ctx, sc.md, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func first(rows []domain.Entity, err error) (domain.Entity, bool, error) {
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

func allRows(tableSchema) (filter, error) { return filter{}, nil }

// FindByID returns the entity stored under id.
func (s *Store) FindByID(ctx context.Context, table string, id any) (domain.Entity, bool, error) {
	return first(s.find(ctx, table, func(sc tableSchema) (filter, error) { return s.idFilter(sc, id) }))
}

// FindByProperty returns the first entity whose property equals value.
func (s *Store) FindByProperty(ctx context.Context, table, property string, value any) (domain.Entity, bool, error) {
	return first(s.find(ctx, table, func(sc tableSchema) (filter, error) { return s.propertyFilter(sc, property, value) }))
}

// FindAllByID returns every entity whose id is listed.
func (s *Store) FindAllByID(ctx context.Context, table string, ids ...any) ([]domain.Entity, error) {
	return s.find(ctx, table, func(sc tableSchema) (filter, error) { return s.idFilter(sc, ids...) })
}

// FindAllByProperty returns every entity whose property equals value.
func (s *Store) FindAllByProperty(ctx context.Context, table, property string, value any) ([]domain.Entity, error) {
	return s.find(ctx, table, func(sc tableSchema) (filter, error) { return s.propertyFilter(sc, property, value) })
}

// FindAll returns every entity of table.
func (s *Store) FindAll(ctx context.Context, table string) ([]domain.Entity, error) {
	return s.find(ctx, table, allRows)
}

// remove is a no-op for tables without metadata.
func (s *Store) remove(ctx context.Context, table string, build func(tableSchema) (filter, error)) error {
	sc, found, err := s.ready(ctx, table)
	if err != nil || !found {
		return err
	}
	f, err := build(sc)
	if err != nil {
		return err
	}
	text, err := s.deleteText(sc, f)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.exec(ctx, tx, text, f.args...)
		return err
	})
}

// DeleteByID removes the entity stored under id.
func (s *Store) DeleteByID(ctx context.Context, table string, id any) error {
	return s.remove(ctx, table, func(sc tableSchema) (filter, error) { return s.idFilter(sc, id) })
}

// DeleteAllByID removes every entity whose id is listed.
func (s *Store) DeleteAllByID(ctx context.Context, table string, ids ...any) error {
	return s.remove(ctx, table, func(sc tableSchema) (filter, error) { return s.idFilter(sc, ids...) })
}

// DeleteAllByProperty removes every entity whose property equals value.
func (s *Store) DeleteAllByProperty(ctx context.Context, table, property string, value any) error {
	return s.remove(ctx, table, func(sc tableSchema) (filter, error) { return s.propertyFilter(sc, property, value) })
}

// DeleteAll removes every row of table.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	return s.remove(ctx, table, allRows)
}

// count is zero for tables without metadata.
func (s *Store) count(ctx context.Context, table string, build func(tableSchema) (filter, error)) (int, error) {
	sc, found, err := s.ready(ctx, table)
	if err != nil || !found {
		return 0, err
	}
	f, err := build(sc)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err = s.countRows(ctx, tx, sc, f)
		return err
	})
	return n, err
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	return s.count(ctx, table, allRows)
}

// CountByProperty counts rows whose property equals value.
func (s *Store) CountByProperty(ctx context.Context, table, property string, value any) (int, error) {
	return s.count(ctx, table, func(sc tableSchema) (filter, error) { return s.propertyFilter(sc, property, value) })
}

// ExistsByProperty reports whether any row's property equals value.
func (s *Store) ExistsByProperty(ctx context.Context, table, property string, value any) (bool, error) {
	n, err := s.CountByProperty(ctx, table, property, value)
	return n > 0, err
}
