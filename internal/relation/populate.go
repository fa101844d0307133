// Package relation rebuilds one-to-many and many-to-one object graphs from
// flat table rows. Row access goes through a Source so the same algorithm
// serves the in-memory and the SQL backends.
package relation

import (
	"context"
	"datamapper/pkg/domain"
	"datamapper/pkg/metadata"
	"fmt"
)

// Reference describes the rows of Table whose Property holds an embedded
// entity with JoinProperty equal to OwnerID.
type Reference struct {
	Table        string
	Property     string
	JoinProperty string
	// JoinColumn is the owner column the embedded key refers to.
	JoinColumn string
	OwnerTable string
	OwnerID    any
}

// Source gives the populator read access to stored rows. Returned entities
// may be shared with storage; the populator clones them.
type Source interface {
	Referencing(ctx context.Context, ref Reference) ([]domain.Entity, error)
	Lookup(ctx context.Context, table string, id any) (domain.Entity, bool, error)
}

// Populator materializes relation properties.
type Populator struct {
	manager *metadata.Manager
	source  Source
}

// NewPopulator returns a populator resolving tables through manager.
func NewPopulator(manager *metadata.Manager, source Source) *Populator {
	return &Populator{manager: manager, source: source}
}

// Populate returns a clone of e with one-to-many relations filled first and
// many-to-one relations resolved afterwards. e is never modified.
//
// A many-to-one reference back to a row already being resolved further up
// the chain keeps its placeholder, so cyclic rows terminate.
func (p *Populator) Populate(ctx context.Context, md domain.EntityMetadata, e domain.Entity) (domain.Entity, error) {
	return p.populate(ctx, md, e, make(map[string]struct{}))
}

func (p *Populator) populate(ctx context.Context, md domain.EntityMetadata, e domain.Entity, resolving map[string]struct{}) (domain.Entity, error) {
	if id, ok := md.ID(e); ok {
		key := rowKey(md.TableName, id)
		resolving[key] = struct{}{}
		defer delete(resolving, key)
	}
	out, err := p.populateOneToMany(ctx, md, e)
	if err != nil {
		return nil, err
	}
	return p.populateManyToOne(ctx, md, out, resolving)
}

func rowKey(table string, id any) string {
	return table + "\x00" + domain.IDKey(id)
}

// PopulateAll applies Populate to every entity.
func (p *Populator) PopulateAll(ctx context.Context, md domain.EntityMetadata, entities []domain.Entity) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		populated, err := p.Populate(ctx, md, e)
		if err != nil {
			return nil, err
		}
		out = append(out, populated)
	}
	return out, nil
}

func (p *Populator) populateOneToMany(ctx context.Context, md domain.EntityMetadata, e domain.Entity) (domain.Entity, error) {
	out := e.Clone()
	if len(md.OneToMany) == 0 {
		return out, nil
	}
	id, ok := md.ID(out)
	if !ok {
		return nil, fmt.Errorf("%w: %s entity has no id to populate %s", domain.ErrMalformedInput, md.TableName, md.OneToMany[0].Property)
	}
	for _, rel := range md.OneToMany {
		if rel.MappedTable == "" || rel.MappedBy == "" {
			return nil, fmt.Errorf("%w: %s.%s one-to-many declaration is incomplete", domain.ErrMalformedInput, md.TableName, rel.Property)
		}
		related, err := p.manager.ByTable(rel.MappedTable)
		if err != nil {
			return nil, fmt.Errorf("populate %s.%s: %w", md.TableName, rel.Property, err)
		}
		relatedField, ok := related.FieldByProperty(rel.MappedBy)
		if !ok {
			return nil, fmt.Errorf("%w: %s declares no field %s for %s.%s", domain.ErrResolution, rel.MappedTable, rel.MappedBy, md.TableName, rel.Property)
		}
		joinField, ok := md.FieldByColumn(relatedField.Column)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no column %s referenced by %s.%s", domain.ErrResolution, md.TableName, relatedField.Column, rel.MappedTable, rel.MappedBy)
		}
		rows, err := p.source.Referencing(ctx, Reference{
			Table:        rel.MappedTable,
			Property:     rel.MappedBy,
			JoinProperty: joinField.Property,
			JoinColumn:   joinField.Column,
			OwnerTable:   md.TableName,
			OwnerID:      id,
		})
		if err != nil {
			return nil, fmt.Errorf("populate %s.%s: %w", md.TableName, rel.Property, err)
		}
		children := make([]domain.Entity, 0, len(rows))
		for _, row := range rows {
			children = append(children, row.Clone())
		}
		out[rel.Property] = children
	}
	return out, nil
}

func (p *Populator) populateManyToOne(ctx context.Context, md domain.EntityMetadata, e domain.Entity, resolving map[string]struct{}) (domain.Entity, error) {
	out := e.Clone()
	for _, rel := range md.ManyToOne {
		field, ok := md.FieldByProperty(rel.Property)
		if !ok {
			return nil, fmt.Errorf("%w: %s declares no field for many-to-one %s", domain.ErrResolution, md.TableName, rel.Property)
		}
		if rel.MappedTable == "" {
			return nil, fmt.Errorf("%w: %s.%s many-to-one declaration is incomplete", domain.ErrMalformedInput, md.TableName, rel.Property)
		}
		related, err := p.manager.ByTable(rel.MappedTable)
		if err != nil {
			return nil, fmt.Errorf("populate %s.%s: %w", md.TableName, rel.Property, err)
		}
		raw, ok := out.Get(rel.Property)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s holds no related entity", domain.ErrMalformedInput, md.TableName, rel.Property)
		}
		placeholder, ok := domain.AsEntity(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s holds %T, want an embedded entity", domain.ErrMalformedInput, md.TableName, rel.Property, raw)
		}
		joinField, ok := related.FieldByColumn(field.Column)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no column %s referenced by %s.%s", domain.ErrResolution, rel.MappedTable, field.Column, md.TableName, rel.Property)
		}
		key, ok := placeholder.Get(joinField.Property)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s carries no %s", domain.ErrMalformedInput, md.TableName, rel.Property, joinField.Property)
		}
		if _, cyclic := resolving[rowKey(rel.MappedTable, key)]; cyclic {
			continue
		}
		row, found, err := p.source.Lookup(ctx, rel.MappedTable, key)
		if err != nil {
			return nil, fmt.Errorf("populate %s.%s: %w", md.TableName, rel.Property, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s %s referenced by %s.%s", domain.ErrRelatedNotFound, rel.MappedTable, domain.FormatID(key), md.TableName, rel.Property)
		}
		resolved, err := p.populate(ctx, related, row, resolving)
		if err != nil {
			return nil, err
		}
		out[rel.Property] = resolved
	}
	return out, nil
}
