package sqldoc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDuplicate(t *testing.T) {
	mysqlDialect, err := LookupDialect("mysql")
	require.NoError(t, err)
	postgresDialect, err := LookupDialect("postgres")
	require.NoError(t, err)

	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"mysql duplicate", mysqlDialect, &mysql.MySQLError{Number: 1062}, true},
		{"mysql wrapped duplicate", mysqlDialect, fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), true},
		{"mysql other", mysqlDialect, &mysql.MySQLError{Number: 1146}, false},
		{"postgres unique violation", postgresDialect, &pq.Error{Code: "23505"}, true},
		{"postgres not null", postgresDialect, &pq.Error{Code: "23502"}, false},
		{"plain error", postgresDialect, errors.New("boom"), false},
		{"nil", mysqlDialect, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsDuplicate(tt.err))
		})
	}
}

func TestCreateTableQuotesPerDialect(t *testing.T) {
	mysqlDialect, _ := LookupDialect("mysql")
	assert.Contains(t, mysqlDialect.CreateTable("lists"), "CREATE TABLE IF NOT EXISTS `lists`")

	sqliteDialect, _ := LookupDialect("sqlite")
	assert.Contains(t, sqliteDialect.CreateTable("lists"), `CREATE TABLE IF NOT EXISTS "lists"`)

	postgresDialect, _ := LookupDialect("postgres")
	assert.Contains(t, postgresDialect.CreateTable("lists"), `"body" JSON NOT NULL`)
}
