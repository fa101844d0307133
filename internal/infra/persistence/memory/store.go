// Package memory provides an in-memory implementation of the persister
// contract used for tests and ephemeral environments. Relations are
// materialized in application code by scanning the process-local tables.
package memory

import (
	"context"
	"datamapper/internal/relation"
	"datamapper/internal/sequence"
	"datamapper/pkg/domain"
	"datamapper/pkg/metadata"
	"fmt"
	"sync"
)

// Compile-time contract assertion ensuring Store adheres to the persister interface.
var _ domain.Persister = (*Store)(nil)

// Item is one stored row. ID never changes after creation; Value is replaced
// wholesale on update.
type Item struct {
	ID    any           `json:"id"`
	Value domain.Entity `json:"value"`
}

// Options configures a Store.
type Options struct {
	// IDMode selects the representation of generated ids.
	IDMode sequence.Mode
}

// Store keeps one ordered table per entity table name. Tables are created on
// first write.
type Store struct {
	mu        sync.RWMutex
	tables    map[string][]Item
	destroyed bool

	manager   *metadata.Manager
	populator *relation.Populator
	idMode    sequence.Mode
}

// NewStore constructs an empty in-memory store.
func NewStore(opts Options) *Store {
	mode := opts.IDMode
	if mode == "" {
		mode = sequence.ModeString
	}
	s := &Store{
		tables:  make(map[string][]Item),
		manager: metadata.NewManager(),
		idMode:  mode,
	}
	s.populator = relation.NewPopulator(s.manager, tableSource{store: s})
	return s
}

// Manager exposes the metadata registered with the store.
func (s *Store) Manager() *metadata.Manager { return s.manager }

// SetupEntityMetadata registers or replaces the metadata of one table.
func (s *Store) SetupEntityMetadata(md domain.EntityMetadata) error {
	return s.manager.Setup(md)
}

func (s *Store) usable() error {
	if s.destroyed {
		return domain.ErrDestroyed
	}
	return nil
}

// Insert stores entities, assigning ids from the process sequence where
// missing. Ids are checked against the existing rows and the batch itself
// before anything is appended.
func (s *Store) Insert(ctx context.Context, table string, entities ...domain.Entity) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	md, err := s.manager.ByTable(table)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: insert into %s without entities", domain.ErrMalformedInput, table)
	}
	existing := make(map[string]struct{}, len(s.tables[table]))
	for _, item := range s.tables[table] {
		existing[domain.IDKey(item.ID)] = struct{}{}
	}
	items := make([]Item, 0, len(entities))
	for _, e := range entities {
		cp := e.Clone()
		if cp == nil {
			cp = domain.Entity{}
		}
		if !domain.ValidID(cp[md.IDProperty]) {
			cp[md.IDProperty] = s.freshID(existing)
		}
		id, ok := md.ID(cp)
		if !ok {
			return nil, fmt.Errorf("%w: %s entity", domain.ErrMissingID, table)
		}
		sequence.Observe(id)
		key := domain.IDKey(id)
		if _, dup := existing[key]; dup {
			return nil, fmt.Errorf("%w: %s %s already exists", domain.ErrDuplicateID, table, domain.FormatID(id))
		}
		existing[key] = struct{}{}
		items = append(items, Item{ID: id, Value: cp})
	}
	s.tables[table] = append(s.tables[table], items...)
	return s.populator.Populate(ctx, md, items[0].Value)
}

// freshID draws sequence ids until one is not taken in existing.
func (s *Store) freshID(existing map[string]struct{}) any {
	for {
		id := sequence.NewID(s.idMode)
		if _, taken := existing[domain.IDKey(id)]; !taken {
			return id
		}
	}
}

// Update replaces the stored entity with the same id, or appends it when the
// id is unknown.
func (s *Store) Update(ctx context.Context, table string, entity domain.Entity) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	md, err := s.manager.ByTable(table)
	if err != nil {
		return nil, err
	}
	cp := entity.Clone()
	id, ok := md.ID(cp)
	if !ok {
		return nil, fmt.Errorf("%w: update %s requires %s", domain.ErrMissingID, table, md.IDProperty)
	}
	sequence.Observe(id)
	rows := s.tables[table]
	replaced := false
	for i := range rows {
		if domain.ValuesEqual(rows[i].ID, id) {
			rows[i].Value = cp
			replaced = true
			break
		}
	}
	if !replaced {
		s.tables[table] = append(rows, Item{ID: id, Value: cp})
	}
	return s.populator.Populate(ctx, md, cp)
}

// scan returns the rows of table matching keep, in insertion order. Callers
// hold the lock.
func (s *Store) scan(table string, keep func(Item) bool) []domain.Entity {
	var out []domain.Entity
	for _, item := range s.tables[table] {
		if keep(item) {
			out = append(out, item.Value)
		}
	}
	return out
}

func (s *Store) find(ctx context.Context, table string, keep func(Item) bool) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	md, err := s.manager.ByTable(table)
	if err != nil {
		return nil, err
	}
	out, err := s.populator.PopulateAll(ctx, md, s.scan(table, keep))
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

func byID(ids ...any) func(Item) bool {
	return func(item Item) bool {
		for _, id := range ids {
			if domain.ValuesEqual(item.ID, id) {
				return true
			}
		}
		return false
	}
}

func byProperty(property string, value any) func(Item) bool {
	return func(item Item) bool {
		v, _ := item.Value.Get(property)
		return domain.ValuesEqual(v, value)
	}
}

func all(Item) bool { return true }

// FindByID returns the entity stored under id.
func (s *Store) FindByID(ctx context.Context, table string, id any) (domain.Entity, bool, error) {
	return first(s.find(ctx, table, byID(id)))
}

// FindByProperty returns the first entity whose property equals value.
func (s *Store) FindByProperty(ctx context.Context, table, property string, value any) (domain.Entity, bool, error) {
	return first(s.find(ctx, table, byProperty(property, value)))
}

// FindAllByID returns every entity whose id is listed, in table order.
func (s *Store) FindAllByID(ctx context.Context, table string, ids ...any) ([]domain.Entity, error) {
	return s.find(ctx, table, byID(ids...))
}

// FindAllByProperty returns every entity whose property equals value.
func (s *Store) FindAllByProperty(ctx context.Context, table, property string, value any) ([]domain.Entity, error) {
	return s.find(ctx, table, byProperty(property, value))
}

// FindAll returns every entity of table.
func (s *Store) FindAll(ctx context.Context, table string) ([]domain.Entity, error) {
	return s.find(ctx, table, all)
}

func (s *Store) remove(table string, drop func(Item) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil
	}
	kept := rows[:0]
	for _, item := range rows {
		if !drop(item) {
			kept = append(kept, item)
		}
	}
	clear(rows[len(kept):])
	s.tables[table] = kept
	return nil
}

// DeleteByID removes the entity stored under id.
func (s *Store) DeleteByID(_ context.Context, table string, id any) error {
	return s.remove(table, byID(id))
}

// DeleteAllByID removes every entity whose id is listed.
func (s *Store) DeleteAllByID(_ context.Context, table string, ids ...any) error {
	return s.remove(table, byID(ids...))
}

// DeleteAllByProperty removes every entity whose property equals value.
func (s *Store) DeleteAllByProperty(_ context.Context, table, property string, value any) error {
	return s.remove(table, byProperty(property, value))
}

// DeleteAll drops the whole table.
func (s *Store) DeleteAll(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	delete(s.tables, table)
	return nil
}

func (s *Store) count(table string, keep func(Item) bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return 0, err
	}
	n := 0
	for _, item := range s.tables[table] {
		if keep(item) {
			n++
		}
	}
	return n, nil
}

// Count returns the number of rows in table; zero when it does not exist.
func (s *Store) Count(_ context.Context, table string) (int, error) {
	return s.count(table, all)
}

// CountByProperty counts rows whose property equals value.
func (s *Store) CountByProperty(_ context.Context, table, property string, value any) (int, error) {
	return s.count(table, byProperty(property, value))
}

// ExistsByProperty reports whether any row's property equals value.
func (s *Store) ExistsByProperty(ctx context.Context, table, property string, value any) (bool, error) {
	n, err := s.CountByProperty(ctx, table, property, value)
	return n > 0, err
}

// Destroy drops every table. Subsequent calls fail with domain.ErrDestroyed.
func (s *Store) Destroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = nil
	s.destroyed = true
	return nil
}

// tableSource serves the populator from the store's tables. The store lock
// is already held by the caller of Populate.
type tableSource struct {
	store *Store
}

func (t tableSource) Referencing(_ context.Context, ref relation.Reference) ([]domain.Entity, error) {
	return t.store.scan(ref.Table, func(item Item) bool {
		raw, ok := item.Value.Get(ref.Property)
		if !ok {
			return false
		}
		embedded, ok := domain.AsEntity(raw)
		if !ok {
			return false
		}
		v, _ := embedded.Get(ref.JoinProperty)
		return domain.ValuesEqual(v, ref.OwnerID)
	}), nil
}

func (t tableSource) Lookup(_ context.Context, table string, id any) (domain.Entity, bool, error) {
	for _, item := range t.store.tables[table] {
		if domain.ValuesEqual(item.ID, id) {
			return item.Value, true, nil
		}
	}
	return nil, false, nil
}
