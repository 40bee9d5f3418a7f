package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleFrom(role string) func(context.Context) (string, bool) {
	return func(context.Context) (string, bool) {
		return role, role != ""
	}
}

func TestRoleExecutorMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		DatabaseName: "harmony",
		RoleFromCtx:  roleFrom("app_viewer"),
		AllowedRoles: []string{"app_viewer"},
		ValidateRole: true,
	})

	mock.ExpectExec(regexp.QuoteMeta("SET ROLE NONE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET ROLE `app_viewer`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("USE `harmony`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("SET ROLE DEFAULT")).WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, rows.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleExecutorPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:          db,
		Dialect:     "postgres",
		RoleFromCtx: roleFrom("reader"),
	})

	mock.ExpectExec(regexp.QuoteMeta(`SET ROLE "reader"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "lists"`)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("RESET ROLE")).WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := executor.ExecContext(context.Background(), `DELETE FROM "lists"`)
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleExecutorWithoutRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewRoleExecutor(RoleExecutorConfig{DB: db, RoleFromCtx: roleFrom("")})
	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET a = 1")).WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = executor.ExecContext(context.Background(), "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleExecutorRejectsUnknownRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		RoleFromCtx:  roleFrom("superuser"),
		AllowedRoles: []string{"app_admin"},
		ValidateRole: true,
	})

	_, err = executor.QueryContext(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role not allowed: superuser")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleExecutorTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewRoleExecutor(RoleExecutorConfig{DB: db, Dialect: "postgres", RoleFromCtx: roleFrom("writer")})

	mock.ExpectExec(regexp.QuoteMeta(`SET ROLE "writer"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("RESET ROLE")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = InTx(context.Background(), executor, func(exec QueryExecutor) error {
		_, err := exec.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = InTx(context.Background(), NewStandardExecutor(db), func(exec QueryExecutor) error {
			_, err := exec.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = InTx(context.Background(), NewStandardExecutor(db), func(exec QueryExecutor) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("runs directly without transactions", func(t *testing.T) {
		called := false
		err := InTx(context.Background(), plainExecutor{}, func(exec QueryExecutor) error {
			called = true
			_, ok := exec.(plainExecutor)
			assert.True(t, ok)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})
}

type plainExecutor struct{}

func (plainExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, sql.ErrConnDone
}

func (plainExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, sql.ErrConnDone
}

func TestStandardExecutorNilDB(t *testing.T) {
	executor := &StandardExecutor{}

	_, err := executor.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = executor.ExecContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = executor.BeginTx(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
