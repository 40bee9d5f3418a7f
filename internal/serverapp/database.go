package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/dbexec"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/middleware"
	"harmony-graphql/internal/sqlutil"
)

// maxRetryInterval caps the backoff between connection attempts.
const maxRetryInterval = 30 * time.Second

// store is the database behind the sqldoc adapter. db is nil when sqldoc
// is disabled.
type store struct {
	db         *sql.DB
	statsReg   interface{ Unregister() error }
	executor   dbexec.QueryExecutor
	database   string
	rolesInUse bool
	logger     *logging.Logger
}

func (s *store) close(context.Context) error {
	if s.statsReg != nil {
		if err := s.statsReg.Unregister(); err != nil {
			s.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

func dbSystem(dialect string) attribute.KeyValue {
	switch dialect {
	case config.DialectPostgres:
		return semconv.DBSystemPostgreSQL
	case config.DialectSQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

// openStore connects to the sqldoc database and waits until it answers.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel telemetry) (*store, error) {
	sc := &cfg.Adapters.SQLDoc
	if !sc.Enabled {
		return &store{logger: logger}, nil
	}

	s := &store{
		logger:     logger.Component("database"),
		rolesInUse: cfg.Server.Auth.DBRoleEnabled,
	}
	if sc.Dialect != config.DialectSQLite {
		database, err := sc.EffectiveDatabaseName()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database name: %w", err)
		}
		s.database = database
	}

	s.logger.Info("connecting to database",
		slog.String("dialect", sc.Dialect),
		slog.String("database", s.database),
		slog.Bool("dsn_present", sc.ConnectionString != ""),
		slog.Bool("db_roles", s.rolesInUse),
	)

	db, statsReg, err := connectDB(cfg, s.logger, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db, s.statsReg = db, statsReg

	db.SetMaxOpenConns(sc.Pool.MaxOpen)
	db.SetMaxIdleConns(sc.Pool.MaxIdle)
	db.SetConnMaxLifetime(sc.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, sc.ConnectionTimeout, sc.ConnectionRetryInterval, s.logger, func(ctx context.Context) error {
		return s.ping(ctx, sc.Dialect)
	}); err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s.executor = buildQueryExecutor(cfg, db, s.database)
	s.logger.Info("connected to database",
		slog.Int("pool_max_open", sc.Pool.MaxOpen),
		slog.Int("pool_max_idle", sc.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", sc.Pool.MaxLifetime),
	)
	return s, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger, tel telemetry) (*sql.DB, interface{ Unregister() error }, error) {
	sc := &cfg.Adapters.SQLDoc
	if err := sc.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn, err := sc.DSN()
	if cfg.Server.Auth.DBRoleEnabled && sc.Dialect == config.DialectMySQL {
		// The role decides which schemas are visible; USE runs after SET ROLE.
		dsn, err = sc.DSNWithoutDatabase()
	}
	if err != nil {
		return nil, nil, err
	}

	if !tel.instrumented() {
		db, err := sql.Open(sc.DriverName(), dsn)
		return db, nil, err
	}

	system := dbSystem(sc.Dialect)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if tel.tracer != nil {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open(sc.DriverName(), dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var statsReg interface{ Unregister() error }
	if tel.meter != nil {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", tel.meter != nil),
		slog.Bool("tracing", tel.tracer != nil),
	)
	return db, statsReg, nil
}

// ping checks the connection. With database roles on MySQL the DSN names no
// database, so the configured one must be selectable.
func (s *store) ping(ctx context.Context, dialect string) error {
	if !s.rolesInUse || dialect != config.DialectMySQL || s.database == "" {
		return s.db.PingContext(ctx)
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "USE "+sqlutil.QuoteIdentifier(s.database)); err != nil {
		return fmt.Errorf("failed to select database %s: %w", s.database, err)
	}
	return nil
}

// waitForDatabase retries check with exponential backoff until it succeeds
// or timeout passes. A zero timeout tries once.
func waitForDatabase(ctx context.Context, timeout, interval time.Duration, logger *logging.Logger, check func(context.Context) error) error {
	if timeout <= 0 {
		return check(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := check(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, maxRetryInterval)
	}
}

// buildQueryExecutor switches statements to the caller's database role when
// roles are enabled.
func buildQueryExecutor(cfg *config.Config, db *sql.DB, database string) dbexec.QueryExecutor {
	auth := cfg.Server.Auth
	if !auth.DBRoleEnabled {
		return dbexec.NewStandardExecutor(db)
	}
	return dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		Dialect:      cfg.Adapters.SQLDoc.Dialect,
		DatabaseName: database,
		RoleFromCtx:  middleware.DBRoleFromContext,
		AllowedRoles: auth.DBAllowedRoles,
		ValidateRole: len(auth.DBAllowedRoles) > 0,
	})
}
