// Package query assembles parameterized SELECT statements. Fragments and
// bound values are stored as factories and evaluated only when a statement is
// built, so the order of placeholders always equals the order in which
// fragments were attached.
package query

import (
	"datamapper/pkg/domain"
	"fmt"
	"strings"
)

// ValueFactory produces one bound parameter.
type ValueFactory func() any

// Predicate is a boolean expression embeddable as a WHERE clause.
type Predicate interface {
	BuildQueryString() string
	BuildQueryValues() []any
	QueryValueFactories() []ValueFactory
}

// Builder renders SELECT <fields> FROM <table> [joins] [WHERE] [GROUP BY].
// A Builder is owned by a single caller.
type Builder struct {
	prefix    string
	fromTable string
	groupBy   string

	fields      []func() string
	fieldValues []ValueFactory
	joins       []func() string
	joinValues  []ValueFactory
	where       Predicate
}

// New returns a builder that prepends prefix to every table reference.
func New(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// TableName returns the unquoted, prefixed name used for table references.
// Predicates qualifying columns against this builder should use it.
func (b *Builder) TableName(name string) string {
	return b.prefix + name
}

// SetFromTable sets the table of the FROM clause.
func (b *Builder) SetFromTable(name string) {
	b.fromTable = name
}

// CompleteFromTable returns the quoted, prefixed FROM table.
func (b *Builder) CompleteFromTable() (string, error) {
	if b.fromTable == "" {
		return "", fmt.Errorf("%w: from table not set", domain.ErrUninitialized)
	}
	return QuoteIdentifier(b.TableName(b.fromTable)), nil
}

// IncludeAllColumnsFromTable adds a table.* field expression.
func (b *Builder) IncludeAllColumnsFromTable(name string) {
	table := b.TableName(name)
	b.fields = append(b.fields, func() string {
		return QuoteIdentifier(table) + ".*"
	})
}

// IncludeColumnFromQueryBuilder embeds sub as an aliased sub-select column
// and splices its value factories after the ones already attached.
func (b *Builder) IncludeColumnFromQueryBuilder(sub *Builder, alias string) error {
	if alias == "" {
		return fmt.Errorf("%w: sub-select alias is empty", domain.ErrMalformedInput)
	}
	if sub == nil {
		return domain.ErrEmptySubquery
	}
	text, err := sub.BuildQueryString()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrComposition, err)
	}
	if text == "" {
		return domain.ErrEmptySubquery
	}
	column := "(" + text + ") AS " + QuoteIdentifier(alias)
	b.fields = append(b.fields, func() string { return column })
	b.fieldValues = append(b.fieldValues, sub.QueryValueFactories()...)
	return nil
}

// IncludeFormulaByString embeds a raw SQL expression as an aliased column.
func (b *Builder) IncludeFormulaByString(formula, alias string) error {
	if formula == "" || alias == "" {
		return fmt.Errorf("%w: formula and alias are required", domain.ErrMalformedInput)
	}
	column := formula + " AS " + QuoteIdentifier(alias)
	b.fields = append(b.fields, func() string { return column })
	return nil
}

// LeftJoinTable records LEFT JOIN fromTable ON sourceTable.sourceColumn = fromTable.fromColumn.
func (b *Builder) LeftJoinTable(fromTable, fromColumn, sourceTable, sourceColumn string) {
	b.LeftJoinTableWhere(fromTable, fromColumn, sourceTable, sourceColumn, nil)
}

// LeftJoinTableWhere is LeftJoinTable with an extra predicate ANDed into the
// ON clause. The predicate's values are bound after earlier join values.
func (b *Builder) LeftJoinTableWhere(fromTable, fromColumn, sourceTable, sourceColumn string, extra Predicate) {
	from := b.TableName(fromTable)
	source := b.TableName(sourceTable)
	b.joins = append(b.joins, func() string {
		clause := "LEFT JOIN " + QuoteIdentifier(from) +
			" ON " + QuoteColumn(source, sourceColumn) + " = " + QuoteColumn(from, fromColumn)
		if extra != nil {
			if cond := extra.BuildQueryString(); cond != "" {
				clause += " AND (" + cond + ")"
			}
		}
		return clause
	})
	if extra != nil {
		b.joinValues = append(b.joinValues, extra.QueryValueFactories()...)
	}
}

// SetWhereFromQueryBuilder attaches the WHERE predicate, replacing any
// previous one.
func (b *Builder) SetWhereFromQueryBuilder(predicate Predicate) {
	b.where = predicate
}

// SetGroupByColumn groups by a column of the FROM table.
func (b *Builder) SetGroupByColumn(name string) {
	b.groupBy = name
}

// GroupByColumn returns the quoted GROUP BY column.
func (b *Builder) GroupByColumn() (string, error) {
	if b.groupBy == "" {
		return "", fmt.Errorf("%w: group-by column not set", domain.ErrUninitialized)
	}
	if b.fromTable == "" {
		return "", fmt.Errorf("%w: group-by requires a from table", domain.ErrUninitialized)
	}
	return QuoteColumn(b.TableName(b.fromTable), b.groupBy), nil
}

func (b *Builder) empty() bool {
	return b.fromTable == "" && b.groupBy == "" && b.where == nil &&
		len(b.fields) == 0 && len(b.joins) == 0
}

// BuildQueryString renders the statement text. A builder that was never
// configured renders an empty string.
func (b *Builder) BuildQueryString() (string, error) {
	if b.empty() {
		return "", nil
	}
	from, err := b.CompleteFromTable()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.fields) == 0 {
		sb.WriteString("*")
	}
	for i, field := range b.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(field())
	}
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	for _, join := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(join())
	}
	if b.where != nil {
		if cond := b.where.BuildQueryString(); cond != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(cond)
		}
	}
	if b.groupBy != "" {
		column, err := b.GroupByColumn()
		if err != nil {
			return "", err
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(column)
	}
	return sb.String(), nil
}

// QueryValueFactories returns the unevaluated factories in placeholder order:
// field values, join values, then predicate values.
func (b *Builder) QueryValueFactories() []ValueFactory {
	out := make([]ValueFactory, 0, len(b.fieldValues)+len(b.joinValues))
	out = append(out, b.fieldValues...)
	out = append(out, b.joinValues...)
	if b.where != nil {
		out = append(out, b.where.QueryValueFactories()...)
	}
	return out
}

// Build renders the statement and evaluates every value factory.
func (b *Builder) Build() (string, []any, error) {
	text, err := b.BuildQueryString()
	if err != nil {
		return "", nil, err
	}
	factories := b.QueryValueFactories()
	values := make([]any, len(factories))
	for i, f := range factories {
		values[i] = f()
	}
	return text, values, nil
}
