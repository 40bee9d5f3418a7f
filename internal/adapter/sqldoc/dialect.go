package sqldoc

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"harmony-graphql/internal/sqlutil"
)

// Dialect describes how document tables are declared and queried on one
// database engine. Every table has the same shape: an insertion sequence,
// the entity _id and the JSON body.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name.
	Driver      string
	Placeholder sq.PlaceholderFormat
	Quote       func(string) string

	createTable func(table string) string
	jsonText    func(column, field string) string
	duplicate   func(err error) bool
}

const (
	seqColumn  = "seq"
	idColumn   = "id"
	bodyColumn = "body"
)

var dialects = map[string]Dialect{
	"mysql": {
		Name:        "mysql",
		Driver:      "mysql",
		Placeholder: sq.Question,
		Quote:       sqlutil.QuoteIdentifier,
		createTable: func(table string) string {
			q := sqlutil.QuoteIdentifier
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGINT NOT NULL AUTO_INCREMENT, %s VARCHAR(191) NOT NULL, %s JSON NOT NULL, PRIMARY KEY (%s), UNIQUE KEY %s (%s))",
				q(table), q(seqColumn), q(idColumn), q(bodyColumn), q(seqColumn), q(table+"_id"), q(idColumn))
		},
		jsonText: func(column, field string) string {
			return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, '$.%s'))", column, field)
		},
		duplicate: func(err error) bool {
			var mysqlErr *mysql.MySQLError
			return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
		},
	},
	"postgres": {
		Name:        "postgres",
		Driver:      "postgres",
		Placeholder: sq.Dollar,
		Quote:       sqlutil.QuoteANSIIdentifier,
		createTable: func(table string) string {
			q := sqlutil.QuoteANSIIdentifier
			// JSON rather than JSONB: JSONB does not keep key order.
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGSERIAL PRIMARY KEY, %s TEXT NOT NULL UNIQUE, %s JSON NOT NULL)",
				q(table), q(seqColumn), q(idColumn), q(bodyColumn))
		},
		jsonText: func(column, field string) string {
			return fmt.Sprintf("%s->>'%s'", column, field)
		},
		duplicate: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	},
	"sqlite": {
		Name:        "sqlite",
		Driver:      "sqlite",
		Placeholder: sq.Question,
		Quote:       sqlutil.QuoteANSIIdentifier,
		createTable: func(table string) string {
			q := sqlutil.QuoteANSIIdentifier
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, %s TEXT NOT NULL UNIQUE, %s TEXT NOT NULL)",
				q(table), q(seqColumn), q(idColumn), q(bodyColumn))
		},
		jsonText: func(column, field string) string {
			return fmt.Sprintf("json_extract(%s, '$.%s')", column, field)
		},
		duplicate: func(err error) bool {
			var sqliteErr *sqlite.Error
			if !errors.As(err, &sqliteErr) {
				return false
			}
			// The id column carries the only constraint an insert can break,
			// so the primary code is enough when extended codes are off.
			switch sqliteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT:
				return true
			}
			return false
		},
	},
}

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown sqldoc dialect %q", name)
	}
	return d, nil
}

// CreateTable returns the DDL of a document table.
func (d Dialect) CreateTable(table string) string {
	return d.createTable(table)
}

// JSONText returns the expression reading a top-level string field of a
// JSON column as text. field must be a plain identifier.
func (d Dialect) JSONText(column, field string) string {
	return d.jsonText(column, field)
}

// IsDuplicate reports whether err is a unique key violation.
func (d Dialect) IsDuplicate(err error) bool {
	return err != nil && d.duplicate(err)
}
