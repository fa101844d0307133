package metadata

import (
	"datamapper/pkg/domain"
	"fmt"
	"sort"
)

// ReferenceField is a field whose value is an embedded related entity rather
// than a scalar column value.
type ReferenceField struct {
	Field domain.FieldMetadata
	// Target is the table the embedded entity belongs to.
	Target string
	// JoinProperty is the property of the target entity that carries the key.
	JoinProperty string
}

// ReferenceFields derives the reference fields of table: its own many-to-one
// properties plus every property another table names as MappedBy in a
// one-to-many relation targeting it. Results are ordered by property.
func ReferenceFields(m *Manager, table string) ([]ReferenceField, error) {
	md, err := m.ByTable(table)
	if err != nil {
		return nil, err
	}
	targets := make(map[string]string)
	for _, rel := range md.ManyToOne {
		targets[rel.Property] = rel.MappedTable
	}
	for _, owner := range m.All() {
		for _, rel := range owner.OneToMany {
			if rel.MappedTable == table && rel.MappedBy != "" {
				targets[rel.MappedBy] = owner.TableName
			}
		}
	}
	out := make([]ReferenceField, 0, len(targets))
	for property, target := range targets {
		field, ok := md.FieldByProperty(property)
		if !ok {
			return nil, fmt.Errorf("%w: table %s has no field for reference %s", domain.ErrResolution, table, property)
		}
		targetMD, err := m.ByTable(target)
		if err != nil {
			return nil, err
		}
		join, ok := targetMD.FieldByColumn(field.Column)
		if !ok {
			return nil, fmt.Errorf("%w: table %s has no column %s referenced by %s.%s", domain.ErrResolution, target, field.Column, table, property)
		}
		out = append(out, ReferenceField{Field: field, Target: target, JoinProperty: join.Property})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field.Property < out[j].Field.Property })
	return out, nil
}
