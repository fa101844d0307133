package metadata

import (
	"datamapper/pkg/domain"
	"fmt"
	"sort"
	"sync"
)

// Manager indexes registered metadata by table name so relation resolution
// can go from a table to its metadata without knowing the entity type.
type Manager struct {
	mu      sync.RWMutex
	byTable map[string]domain.EntityMetadata
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{byTable: make(map[string]domain.EntityMetadata)}
}

// Setup validates md and registers it under its table name. A later record
// for the same table replaces the earlier one.
func (m *Manager) Setup(md domain.EntityMetadata) error {
	if err := md.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTable[md.TableName] = md.Clone()
	return nil
}

// ByTable returns the metadata registered for table.
func (m *Manager) ByTable(table string) (domain.EntityMetadata, error) {
	m.mu.RLock()
	md, ok := m.byTable[table]
	m.mu.RUnlock()
	if !ok {
		return domain.EntityMetadata{}, fmt.Errorf("%w: table %q", domain.ErrMetadataNotFound, table)
	}
	return md.Clone(), nil
}

// Tables lists registered table names in lexical order.
func (m *Manager) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byTable))
	for name := range m.byTable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns copies of every registered record ordered by table name.
func (m *Manager) All() []domain.EntityMetadata {
	tables := m.Tables()
	out := make([]domain.EntityMetadata, 0, len(tables))
	for _, table := range tables {
		if md, err := m.ByTable(table); err == nil {
			out = append(out, md)
		}
	}
	return out
}
