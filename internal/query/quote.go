package query

import "strings"

// QuoteIdentifier double-quotes a table or column name, doubling embedded
// quotes, so reserved words and mixed case survive.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteColumn renders a quoted table.column pair.
func QuoteColumn(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}
