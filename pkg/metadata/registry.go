// Package metadata holds the entity metadata registry keyed by entity type
// and the manager that indexes registered metadata by table name.
package metadata

import (
	"datamapper/pkg/domain"
	"fmt"
	"sync"
)

// EntityType is the stable identifier an application assigns to an entity
// type when declaring it.
type EntityType string

// Registrar receives finalized metadata records. Every domain.Persister
// satisfies it.
type Registrar interface {
	SetupEntityMetadata(metadata domain.EntityMetadata) error
}

// Registry maps entity types to their metadata. Declarations may be applied
// incrementally; the record is read as immutable once handed to a persister.
type Registry struct {
	declare sync.Mutex // serializes Declare
	mu      sync.RWMutex
	records map[EntityType]*domain.EntityMetadata
	order   []EntityType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[EntityType]*domain.EntityMetadata)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Declare.
func Default() *Registry { return defaultRegistry }

// Declare applies mutate to the metadata of t on the process-wide registry.
func Declare(t EntityType, mutate func(*domain.EntityMetadata)) {
	defaultRegistry.Declare(t, mutate)
}

// Declare applies mutate to the metadata record of t, creating it on first
// use. Later declarations see the effects of earlier ones. mutate works on a
// private copy, so it may call Lookup or Types; it must not call Declare on
// the same registry.
func (r *Registry) Declare(t EntityType, mutate func(*domain.EntityMetadata)) {
	r.declare.Lock()
	defer r.declare.Unlock()
	r.mu.RLock()
	var md domain.EntityMetadata
	current, ok := r.records[t]
	if ok {
		md = current.Clone()
	}
	r.mu.RUnlock()
	if mutate != nil {
		mutate(&md)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		r.order = append(r.order, t)
	}
	r.records[t] = &md
}

// Lookup returns a copy of the metadata declared for t.
func (r *Registry) Lookup(t EntityType) (domain.EntityMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.records[t]
	if !ok {
		return domain.EntityMetadata{}, false
	}
	return md.Clone(), true
}

// Types lists declared entity types in declaration order.
func (r *Registry) Types() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EntityType(nil), r.order...)
}

// SetupPersister registers every declared record with p in declaration order.
func (r *Registry) SetupPersister(p Registrar) error {
	for _, t := range r.Types() {
		md, _ := r.Lookup(t)
		if err := p.SetupEntityMetadata(md); err != nil {
			return fmt.Errorf("setup %s: %w", t, err)
		}
	}
	return nil
}
