package memory

import (
	"datamapper/internal/sequence"
	"datamapper/pkg/domain"
	"fmt"
)

// Snapshot captures every table of a Store for archival.
type Snapshot struct {
	Tables map[string][]Item `json:"tables"`
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Tables: cloneTables(s.tables)}
}

// ImportState replaces the store contents with snapshot. Every item must
// carry a valid id and ids must be unique per table. The id sequence is
// advanced past every imported id.
func (s *Store) ImportState(snapshot Snapshot) error {
	for table, items := range snapshot.Tables {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if !domain.ValidID(item.ID) {
				return fmt.Errorf("%w: snapshot table %s", domain.ErrMissingID, table)
			}
			key := domain.IDKey(item.ID)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: snapshot table %s id %s", domain.ErrDuplicateID, table, domain.FormatID(item.ID))
			}
			seen[key] = struct{}{}
		}
	}
	for _, items := range snapshot.Tables {
		for _, item := range items {
			sequence.Observe(item.ID)
		}
	}
	tables := cloneTables(snapshot.Tables)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.tables = tables
	return nil
}

func cloneTables(in map[string][]Item) map[string][]Item {
	out := make(map[string][]Item, len(in))
	for table, items := range in {
		cp := make([]Item, len(items))
		for i, item := range items {
			cp[i] = Item{ID: item.ID, Value: item.Value.Clone()}
		}
		out[table] = cp
	}
	return out
}
