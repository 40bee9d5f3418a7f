// Package sqlutil quotes identifiers for the SQL dialects document tables
// live in.
package sqlutil

import "strings"

// QuoteIdentifier quotes a MySQL/TiDB identifier with backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteANSIIdentifier quotes a Postgres or SQLite identifier with double
// quotes.
func QuoteANSIIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Quoter returns the identifier quoting of a dialect.
func Quoter(dialect string) func(string) string {
	if dialect == "mysql" {
		return QuoteIdentifier
	}
	return QuoteANSIIdentifier
}
