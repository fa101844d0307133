// Package repository offers typed access to a domain.Persister. A Schema
// lists the persisted properties of a Go type once, through plain getter and
// setter functions, so values convert to and from domain.Entity without
// reflection.
package repository

import (
	"datamapper/pkg/domain"
	"fmt"
)

type accessor[T any] struct {
	name string
	get  func(*T) any
	set  func(*T, any) error
}

// Schema is the accessor table of T for one table.
type Schema[T any] struct {
	table      string
	idProperty string
	accessors  []accessor[T]
	index      map[string]int
}

// NewSchema starts an accessor table for values stored in table and keyed by
// idProperty.
func NewSchema[T any](table, idProperty string) *Schema[T] {
	return &Schema[T]{table: table, idProperty: idProperty, index: make(map[string]int)}
}

// Property registers the accessors of one property. Registering a name again
// replaces the earlier accessors. A nil setter makes the property write-only.
func (s *Schema[T]) Property(name string, get func(*T) any, set func(*T, any) error) *Schema[T] {
	a := accessor[T]{name: name, get: get, set: set}
	if i, ok := s.index[name]; ok {
		s.accessors[i] = a
		return s
	}
	s.index[name] = len(s.accessors)
	s.accessors = append(s.accessors, a)
	return s
}

// Table returns the table the schema maps onto.
func (s *Schema[T]) Table() string { return s.table }

// Properties lists registered property names in registration order.
func (s *Schema[T]) Properties() []string {
	out := make([]string, len(s.accessors))
	for i, a := range s.accessors {
		out[i] = a.name
	}
	return out
}

// ToEntity reads every registered property of v. Nil getters and nil values
// are left out so the persister can assign ids and skip absent relations.
func (s *Schema[T]) ToEntity(v *T) domain.Entity {
	e := make(domain.Entity, len(s.accessors))
	for _, a := range s.accessors {
		if a.get == nil {
			continue
		}
		if val := a.get(v); val != nil {
			e[a.name] = val
		}
	}
	return e
}

// FromEntity builds a T from e. Properties absent from e keep their zero
// value.
func (s *Schema[T]) FromEntity(e domain.Entity) (*T, error) {
	out := new(T)
	for _, a := range s.accessors {
		if a.set == nil {
			continue
		}
		val, ok := e.Get(a.name)
		if !ok {
			continue
		}
		if err := a.set(out, val); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.table, a.name, err)
		}
	}
	return out, nil
}

// ID returns the id property of v.
func (s *Schema[T]) ID(v *T) (any, bool) {
	i, ok := s.index[s.idProperty]
	if !ok || s.accessors[i].get == nil {
		return nil, false
	}
	id := s.accessors[i].get(v)
	return id, domain.ValidID(id)
}
