package sqlstore

import (
	"datamapper/internal/query"
	"fmt"
	"strings"
)

// filter selects rows by one column. An empty column selects every row; a
// nil-valued filter matches NULL columns.
type filter struct {
	column string
	args   []any
	isNull bool
}

func (f filter) key() string {
	switch {
	case f.column == "":
		return "*"
	case f.isNull:
		return f.column + "|null"
	default:
		return fmt.Sprintf("%s|%d", f.column, len(f.args))
	}
}

func (f filter) condition(table string) *query.Condition {
	cond := query.Where(table, f.column)
	switch {
	case f.isNull:
		return cond.IsNull()
	case len(f.args) == 1:
		return cond.Eq(f.args[0])
	default:
		return cond.In(f.args...)
	}
}

func (s *Store) render(b *query.Builder) (string, error) {
	text, err := b.BuildQueryString()
	if err != nil {
		return "", err
	}
	return s.db.Rebind(text), nil
}

func (s *Store) selectText(sc tableSchema, f filter) (string, error) {
	return s.stmts.get("select|"+sc.name+"|"+f.key(), func() (string, error) {
		b := query.New(s.prefix)
		b.SetFromTable(sc.md.TableName)
		b.IncludeAllColumnsFromTable(sc.md.TableName)
		if f.column != "" {
			b.SetWhereFromQueryBuilder(f.condition(b.TableName(sc.md.TableName)))
		}
		return s.render(b)
	})
}

func (s *Store) countText(sc tableSchema, f filter) (string, error) {
	return s.stmts.get("count|"+sc.name+"|"+f.key(), func() (string, error) {
		b := query.New(s.prefix)
		b.SetFromTable(sc.md.TableName)
		if err := b.IncludeFormulaByString("COUNT(*)", "total"); err != nil {
			return "", err
		}
		if f.column != "" {
			b.SetWhereFromQueryBuilder(f.condition(b.TableName(sc.md.TableName)))
		}
		return s.render(b)
	})
}

// referencingText selects the rows of child whose reference column points at
// one owner row, joining through the owner's key column.
func (s *Store) referencingText(child, owner tableSchema, refColumn, ownerColumn string) (string, error) {
	key := "ref|" + child.name + "|" + refColumn + "|" + owner.name + "|" + ownerColumn
	return s.stmts.get(key, func() (string, error) {
		b := query.New(s.prefix)
		b.SetFromTable(child.md.TableName)
		b.IncludeAllColumnsFromTable(child.md.TableName)
		if child.name == owner.name {
			b.SetWhereFromQueryBuilder(query.Where(b.TableName(child.md.TableName), refColumn).Eq(nil))
			return s.render(b)
		}
		b.LeftJoinTable(owner.md.TableName, ownerColumn, child.md.TableName, refColumn)
		b.SetWhereFromQueryBuilder(query.Where(b.TableName(owner.md.TableName), ownerColumn).Eq(nil))
		return s.render(b)
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = query.QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}

func (s *Store) insertText(sc tableSchema, columns []string) (string, error) {
	return s.stmts.get("insert|"+sc.name, func() (string, error) {
		text := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			query.QuoteIdentifier(sc.name), quoteAll(columns), placeholders(len(columns)))
		return s.db.Rebind(text), nil
	})
}

func (s *Store) updateText(sc tableSchema, columns []string) (string, error) {
	return s.stmts.get("update|"+sc.name, func() (string, error) {
		sets := make([]string, len(columns))
		for i, c := range columns {
			sets[i] = query.QuoteIdentifier(c) + " = ?"
		}
		text := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
			query.QuoteIdentifier(sc.name), strings.Join(sets, ", "), query.QuoteIdentifier(sc.idColumn))
		return s.db.Rebind(text), nil
	})
}

func (s *Store) deleteText(sc tableSchema, f filter) (string, error) {
	return s.stmts.get("delete|"+sc.name+"|"+f.key(), func() (string, error) {
		text := "DELETE FROM " + query.QuoteIdentifier(sc.name)
		if f.column != "" {
			text += " WHERE " + f.condition("").BuildQueryString()
		}
		return s.db.Rebind(text), nil
	})
}
