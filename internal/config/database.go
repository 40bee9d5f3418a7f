package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name custom TLS configs are registered under with
// the MySQL driver.
const tlsConfigName = "harmony-graphql-custom"

// Supported sqldoc dialects.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d *SQLDocConfig) DriverName() string {
	switch d.Dialect {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// DefaultPort returns the port used when none is configured.
func (d *SQLDocConfig) DefaultPort() int {
	switch d.Dialect {
	case DialectPostgres:
		return 5432
	case DialectMySQL, "":
		return 3306
	}
	return 0
}

func (d *SQLDocConfig) addr() string {
	port := d.Port
	if port == 0 {
		port = d.DefaultPort()
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// DSN returns the data source name for the configured dialect.
func (d *SQLDocConfig) DSN() (string, error) {
	return d.dsn(true)
}

// DSNWithoutDatabase returns a MySQL DSN that selects no database, so the
// role switched to per request decides visibility. Other dialects return
// the regular DSN.
func (d *SQLDocConfig) DSNWithoutDatabase() (string, error) {
	return d.dsn(d.Dialect != DialectMySQL && d.Dialect != "")
}

func (d *SQLDocConfig) dsn(withDatabase bool) (string, error) {
	switch d.Dialect {
	case DialectMySQL, "":
		return d.mysqlDSN(withDatabase)
	case DialectPostgres:
		return d.postgresDSN(), nil
	case DialectSQLite:
		return d.sqliteDSN(), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", d.Dialect)
}

func (d *SQLDocConfig) mysqlDSN(withDatabase bool) (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("adapters.sqldoc.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = d.addr()
		cfg.DBName = d.Database
	}
	if !withDatabase {
		cfg.DBName = ""
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}
	if cfg.TLSConfig == "" {
		cfg.TLSConfig = d.mysqlTLSParam()
	}
	return cfg.FormatDSN(), nil
}

// mysqlTLSParam returns the tls DSN parameter for the configured mode.
func (d *SQLDocConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

func (d *SQLDocConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.addr(),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	switch d.TLS.Mode {
	case "", "off":
		q.Set("sslmode", "disable")
	case "skip-verify":
		q.Set("sslmode", "require")
	default:
		q.Set("sslmode", d.TLS.Mode)
	}
	if ca := d.TLS.resolveCAFile(); ca != "" {
		q.Set("sslrootcert", ca)
	}
	if cert := d.TLS.resolveCertFile(); cert != "" {
		q.Set("sslcert", cert)
	}
	if key := d.TLS.resolveKeyFile(); key != "" {
		q.Set("sslkey", key)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *SQLDocConfig) sqliteDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	return "file:" + d.Path + "?_pragma=busy_timeout(5000)"
}

// EffectiveDatabaseName returns the database the adapter writes to. MySQL
// DSNs are parsed so that a database named there wins over the default.
func (d *SQLDocConfig) EffectiveDatabaseName() (string, error) {
	if d.Dialect != DialectMySQL && d.Dialect != "" {
		return d.Database, nil
	}
	dsnDatabase, err := parseDSNDatabaseName(d.ConnectionString)
	if err != nil {
		return "", err
	}
	if dsnDatabase != "" {
		return dsnDatabase, nil
	}
	if strings.TrimSpace(d.Database) == "" {
		return "", fmt.Errorf("no database configured: set adapters.sqldoc.database or include /<database> in adapters.sqldoc.dsn")
	}
	return d.Database, nil
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("adapters.sqldoc.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It must run before the connection is opened in verify-ca and verify-full
// modes, and does nothing otherwise.
func (d *SQLDocConfig) RegisterTLS() error {
	if d.Dialect != DialectMySQL && d.Dialect != "" {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *SQLDocConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	caFile := d.TLS.resolveCAFile()
	certFile := d.TLS.resolveCertFile()
	keyFile := d.TLS.resolveKeyFile()

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if certFile != "" || keyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}

func (t *DatabaseTLSConfig) resolveCAFile() string {
	return fromEnvOr(t.CAFileEnv, t.CAFile)
}

func (t *DatabaseTLSConfig) resolveCertFile() string {
	return fromEnvOr(t.CertFileEnv, t.CertFile)
}

func (t *DatabaseTLSConfig) resolveKeyFile() string {
	return fromEnvOr(t.KeyFileEnv, t.KeyFile)
}

// fromEnvOr returns the value of the environment variable env when it is
// set and not empty, and fallback otherwise.
func fromEnvOr(env, fallback string) string {
	if env != "" {
		if path := os.Getenv(env); path != "" {
			return path
		}
	}
	return fallback
}
