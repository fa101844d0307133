package domain

import "fmt"

// FieldMetadata maps an entity property onto a table column. For relation
// properties the column names the key column of the related table.
type FieldMetadata struct {
	Property string `json:"property"`
	Column   string `json:"column"`
}

// OneToManyRelation states that the entity owns every row of MappedTable whose
// MappedBy property references it.
type OneToManyRelation struct {
	Property    string `json:"property"`
	MappedBy    string `json:"mapped_by"`
	MappedTable string `json:"mapped_table"`
}

// ManyToOneRelation states that the entity holds exactly one row of
// MappedTable, referenced through the field declared for Property.
type ManyToOneRelation struct {
	Property    string `json:"property"`
	MappedTable string `json:"mapped_table"`
}

// EntityMetadata describes the persisted shape of one entity type.
type EntityMetadata struct {
	TableName  string              `json:"table_name"`
	IDProperty string              `json:"id_property"`
	Fields     []FieldMetadata     `json:"fields"`
	OneToMany  []OneToManyRelation `json:"one_to_many,omitempty"`
	ManyToOne  []ManyToOneRelation `json:"many_to_one,omitempty"`
}

// AddField appends a field declaration, replacing an earlier one with the
// same property so repeated declarations stay unique.
func (m *EntityMetadata) AddField(property, column string) {
	for i := range m.Fields {
		if m.Fields[i].Property == property {
			m.Fields[i].Column = column
			return
		}
	}
	m.Fields = append(m.Fields, FieldMetadata{Property: property, Column: column})
}

// AddOneToMany declares a one-to-many relation.
func (m *EntityMetadata) AddOneToMany(property, mappedBy, mappedTable string) {
	for i := range m.OneToMany {
		if m.OneToMany[i].Property == property {
			m.OneToMany[i] = OneToManyRelation{Property: property, MappedBy: mappedBy, MappedTable: mappedTable}
			return
		}
	}
	m.OneToMany = append(m.OneToMany, OneToManyRelation{Property: property, MappedBy: mappedBy, MappedTable: mappedTable})
}

// AddManyToOne declares a many-to-one relation.
func (m *EntityMetadata) AddManyToOne(property, mappedTable string) {
	for i := range m.ManyToOne {
		if m.ManyToOne[i].Property == property {
			m.ManyToOne[i].MappedTable = mappedTable
			return
		}
	}
	m.ManyToOne = append(m.ManyToOne, ManyToOneRelation{Property: property, MappedTable: mappedTable})
}

// FieldByProperty returns the field declared for property.
func (m *EntityMetadata) FieldByProperty(property string) (FieldMetadata, bool) {
	for _, f := range m.Fields {
		if f.Property == property {
			return f, true
		}
	}
	return FieldMetadata{}, false
}

// FieldByColumn returns the first field mapped onto column.
func (m *EntityMetadata) FieldByColumn(column string) (FieldMetadata, bool) {
	for _, f := range m.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldMetadata{}, false
}

// IDField returns the field backing the primary key.
func (m *EntityMetadata) IDField() (FieldMetadata, bool) {
	return m.FieldByProperty(m.IDProperty)
}

// ID extracts the primary key value of e.
func (m *EntityMetadata) ID(e Entity) (any, bool) {
	v, ok := e.Get(m.IDProperty)
	if !ok || !ValidID(v) {
		return nil, false
	}
	return v, true
}

// Validate checks the invariants of a finalized declaration.
func (m *EntityMetadata) Validate() error {
	if m.TableName == "" {
		return fmt.Errorf("%w: metadata without table name", ErrMalformedInput)
	}
	if m.IDProperty == "" {
		return fmt.Errorf("%w: table %s has no id property", ErrMalformedInput, m.TableName)
	}
	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Property == "" || f.Column == "" {
			return fmt.Errorf("%w: table %s declares a field without property or column", ErrMalformedInput, m.TableName)
		}
		if _, dup := seen[f.Property]; dup {
			return fmt.Errorf("%w: table %s declares property %s twice", ErrMalformedInput, m.TableName, f.Property)
		}
		seen[f.Property] = struct{}{}
	}
	if _, ok := seen[m.IDProperty]; !ok {
		return fmt.Errorf("%w: table %s id property %s is not a declared field", ErrMalformedInput, m.TableName, m.IDProperty)
	}
	return nil
}

// Clone returns an independent copy of the metadata record.
func (m EntityMetadata) Clone() EntityMetadata {
	m.Fields = append([]FieldMetadata(nil), m.Fields...)
	m.OneToMany = append([]OneToManyRelation(nil), m.OneToMany...)
	m.ManyToOne = append([]ManyToOneRelation(nil), m.ManyToOne...)
	return m
}
