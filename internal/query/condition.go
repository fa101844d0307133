package query

import "strings"

// Operator is a comparison or logical operator of a Condition.
type Operator string

const (
	OpEq     Operator = "="
	OpNeq    Operator = "<>"
	OpGt     Operator = ">"
	OpGte    Operator = ">="
	OpLt     Operator = "<"
	OpLte    Operator = "<="
	OpIn     Operator = "IN"
	OpIsNull Operator = "IS NULL"
	OpAnd    Operator = "AND"
	OpOr     Operator = "OR"
	OpNot    Operator = "NOT"
)

// Condition is a predicate tree: a leaf compares one column, inner nodes
// combine children with AND, OR or NOT. Operators never modify their
// receiver, so a column started with Where can seed several predicates.
//
//	cond := Where("children", "parent").Eq(id).And(Where("children", "name").IsNull())
type Condition struct {
	column   string
	operator Operator
	values   []ValueFactory
	children []*Condition
}

var _ Predicate = (*Condition)(nil)

// Where starts a condition on table.column. table must already carry any
// builder prefix (see Builder.TableName); an empty table leaves the column
// unqualified.
func Where(table, column string) *Condition {
	if table == "" {
		return &Condition{column: QuoteIdentifier(column)}
	}
	return &Condition{column: QuoteColumn(table, column)}
}

func constant(v any) ValueFactory { return func() any { return v } }

// leaf returns a new comparison on c's column.
func (c *Condition) leaf(op Operator, values []ValueFactory) *Condition {
	return &Condition{column: c.column, operator: op, values: values}
}

func (c *Condition) compare(op Operator, v any) *Condition {
	return c.leaf(op, []ValueFactory{constant(v)})
}

// Eq compares for equality.
func (c *Condition) Eq(v any) *Condition { return c.compare(OpEq, v) }

// EqFactory compares for equality against a value produced at build time.
func (c *Condition) EqFactory(f ValueFactory) *Condition {
	return c.leaf(OpEq, []ValueFactory{f})
}

// Neq compares for inequality.
func (c *Condition) Neq(v any) *Condition { return c.compare(OpNeq, v) }

// Gt compares with >.
func (c *Condition) Gt(v any) *Condition { return c.compare(OpGt, v) }

// Gte compares with >=.
func (c *Condition) Gte(v any) *Condition { return c.compare(OpGte, v) }

// Lt compares with <.
func (c *Condition) Lt(v any) *Condition { return c.compare(OpLt, v) }

// Lte compares with <=.
func (c *Condition) Lte(v any) *Condition { return c.compare(OpLte, v) }

// In checks membership in values. An empty list matches nothing.
func (c *Condition) In(values ...any) *Condition {
	factories := make([]ValueFactory, len(values))
	for i, v := range values {
		factories[i] = constant(v)
	}
	return c.leaf(OpIn, factories)
}

// IsNull checks for SQL NULL.
func (c *Condition) IsNull() *Condition {
	return c.leaf(OpIsNull, nil)
}

// And combines c with others.
func (c *Condition) And(others ...*Condition) *Condition {
	return &Condition{operator: OpAnd, children: append([]*Condition{c}, others...)}
}

// Or combines c with others.
func (c *Condition) Or(others ...*Condition) *Condition {
	return &Condition{operator: OpOr, children: append([]*Condition{c}, others...)}
}

// Not negates c.
func (c *Condition) Not() *Condition {
	return &Condition{operator: OpNot, children: []*Condition{c}}
}

// BuildQueryString renders the condition with ? placeholders.
func (c *Condition) BuildQueryString() string {
	if c == nil {
		return ""
	}
	switch c.operator {
	case OpAnd, OpOr:
		parts := make([]string, 0, len(c.children))
		for _, child := range c.children {
			if s := child.BuildQueryString(); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return ""
		}
		return "(" + strings.Join(parts, " "+string(c.operator)+" ") + ")"
	case OpNot:
		inner := c.children[0].BuildQueryString()
		if inner == "" {
			return ""
		}
		return "NOT (" + inner + ")"
	case OpIsNull:
		return c.column + " IS NULL"
	case OpIn:
		if len(c.values) == 0 {
			return "1 = 0"
		}
		return c.column + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(c.values)), ", ") + ")"
	case "":
		return ""
	default:
		return c.column + " " + string(c.operator) + " ?"
	}
}

// QueryValueFactories returns value factories in placeholder order.
func (c *Condition) QueryValueFactories() []ValueFactory {
	if c == nil {
		return nil
	}
	if len(c.children) == 0 {
		return append([]ValueFactory(nil), c.values...)
	}
	var out []ValueFactory
	for _, child := range c.children {
		out = append(out, child.QueryValueFactories()...)
	}
	return out
}

// BuildQueryValues evaluates the value factories.
func (c *Condition) BuildQueryValues() []any {
	factories := c.QueryValueFactories()
	values := make([]any, len(factories))
	for i, f := range factories {
		values[i] = f()
	}
	return values
}
