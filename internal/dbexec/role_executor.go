package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"harmony-graphql/internal/sqlutil"
)

// RoleExecutor runs every statement on a dedicated connection after
// switching it to the role carried by the request context. The connection
// is reset before it returns to the pool.
type RoleExecutor struct {
	db           *sql.DB
	dialect      string
	databaseName string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB *sql.DB
	// Dialect is "mysql" or "postgres". SQLite has no roles.
	Dialect string
	// DatabaseName is selected with USE after the role switch on MySQL,
	// where the DSN omits it so the role decides visibility.
	DatabaseName string
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each statement.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = "mysql"
	}
	return &RoleExecutor{
		db:           cfg.DB,
		dialect:      dialect,
		databaseName: cfg.DatabaseName,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

// roleStatements returns the statements that switch a connection to role
// and the statement that resets it.
func (e *RoleExecutor) roleStatements(role string) ([]string, string) {
	quote := sqlutil.Quoter(e.dialect)
	if e.dialect == "postgres" {
		return []string{"SET ROLE " + quote(role)}, "RESET ROLE"
	}
	stmts := []string{"SET ROLE NONE", "SET ROLE " + quote(role)}
	if e.databaseName != "" {
		stmts = append(stmts, "USE "+quote(e.databaseName))
	}
	return stmts, "SET ROLE DEFAULT"
}

// checkRole returns the role to apply, or "" when the context has none.
func (e *RoleExecutor) checkRole(ctx context.Context) (string, error) {
	if e.roleFromCtx == nil {
		return "", nil
	}
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return "", nil
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return "", fmt.Errorf("role not allowed: %s", role)
		}
	}
	return role, nil
}

// acquire returns a connection switched to the context role and its
// release function.
func (e *RoleExecutor) acquire(ctx context.Context) (*sql.Conn, func(), error) {
	role, err := e.checkRole(ctx)
	if err != nil {
		return nil, nil, err
	}
	if e.db == nil {
		return nil, nil, sql.ErrConnDone
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	stmts, reset := e.roleStatements(role)
	release := func() {
		if role != "" {
			_, _ = conn.ExecContext(context.Background(), reset)
		}
		_ = conn.Close()
	}
	if role == "" {
		return conn, release, nil
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to apply role %s: %w", role, err)
		}
	}
	return conn, release, nil
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		release()
		return nil, err
	}
	return &roleAwareRows{Rows: rows, cleanup: release}, nil
}

func (e *RoleExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return conn.ExecContext(ctx, query, args...)
}

// BeginTx opens a transaction on a connection switched to the context role.
// The connection is released when the transaction ends.
func (e *RoleExecutor) BeginTx(ctx context.Context) (TxExecutor, error) {
	conn, release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		release()
		return nil, err
	}
	return &connTx{sqlTx: sqlTx{tx: tx}, release: release}, nil
}

type connTx struct {
	sqlTx
	release func()
}

func (t *connTx) Commit() error {
	defer t.release()
	return t.sqlTx.Commit()
}

func (t *connTx) Rollback() error {
	defer t.release()
	return t.sqlTx.Rollback()
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
