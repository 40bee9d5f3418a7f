package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harmony.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Millisecond, cfg.Server.LoaderWait)
	assert.Equal(t, "models.yaml", cfg.Models.File)
	assert.True(t, cfg.Adapters.Mock.Enabled)
	assert.False(t, cfg.Adapters.SQLDoc.Enabled)
	assert.Equal(t, "mysql", cfg.Adapters.SQLDoc.Dialect)
	assert.Equal(t, "harmony-graphql", cfg.Observability.ServiceName)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Server.CORSAllowedMethods)

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
  graphiql_enabled: true
models:
  file: todo.yaml
  prefix: File
`)
	t.Setenv("HARMONY_MODELS_PREFIX", "Env")
	t.Setenv("HARMONY_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(newFlags(t, "--config", path, "--server.port", "9090"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "flags win over the file")
	assert.Equal(t, "Env", cfg.Models.Prefix, "env wins over the file")
	assert.Equal(t, "todo.yaml", cfg.Models.File)
	assert.True(t, cfg.Server.GraphiQLEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "server:\n  prot: 8080\n")
	_, err := Load(newFlags(t, "--config", path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadSecretsFromFiles(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "pw")
	secretFile := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(secretFile, []byte("  shared-secret  "), 0o600))

	cfg, err := Load(newFlags(t,
		"--adapters.sqldoc.enabled",
		"--adapters.sqldoc.password_file", pwFile,
		"--server.auth.jwt_secret_file", secretFile,
	))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Adapters.SQLDoc.Password)
	assert.Equal(t, "shared-secret", cfg.Server.Auth.JWTSecret)
	assert.True(t, cfg.Server.Auth.JWTEnabled())
}

func TestLoadEmptySecretFile(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("\n"), 0o600))

	_, err := Load(newFlags(t, "--server.auth.jwt_secret_file", secretFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestLoadPasswordPrompt(t *testing.T) {
	original := passwordPrompt
	t.Cleanup(func() { passwordPrompt = original })

	prompted := 0
	passwordPrompt = func() (string, error) {
		prompted++
		return "typed", nil
	}

	cfg, err := Load(newFlags(t, "--adapters.sqldoc.enabled", "--adapters.sqldoc.password_prompt"))
	require.NoError(t, err)
	assert.Equal(t, "typed", cfg.Adapters.SQLDoc.Password)
	assert.Equal(t, 1, prompted)

	_, err = Load(newFlags(t, "--adapters.sqldoc.password_prompt"))
	require.NoError(t, err)
	assert.Equal(t, 1, prompted, "no prompt while sqldoc is disabled")
}

func TestLoadRejectsMultipleStdinSources(t *testing.T) {
	_, err := Load(newFlags(t,
		"--adapters.sqldoc.password_file", "@-",
		"--server.auth.jwt_secret_file", "@-",
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one @- source is allowed")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(nil)
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		warning   bool
	}{
		{
			name:      "missing model file",
			mutate:    func(c *Config) { c.Models.File = "" },
			wantField: "models.file",
		},
		{
			name:      "no adapters",
			mutate:    func(c *Config) { c.Adapters.Mock.Enabled = false },
			wantField: "adapters",
		},
		{
			name:      "default adapter disabled",
			mutate:    func(c *Config) { c.Models.DefaultAdapter = "sqldoc" },
			wantField: "models.default_adapter",
		},
		{
			name:      "negative max depth",
			mutate:    func(c *Config) { c.Server.GraphQLMaxDepth = -1 },
			wantField: "server.graphql_max_depth",
		},
		{
			name:      "unauthenticated admin reload",
			mutate:    func(c *Config) { c.Server.Admin.ReloadEnabled = true },
			wantField: "server.admin.reload_enabled",
			warning:   true,
		},
		{
			name:      "unknown default adapter",
			mutate:    func(c *Config) { c.Models.DefaultAdapter = "couchbase" },
			wantField: "models.default_adapter",
		},
		{
			name: "unknown dialect",
			mutate: func(c *Config) {
				c.Adapters.SQLDoc.Enabled = true
				c.Adapters.SQLDoc.Dialect = "oracle"
			},
			wantField: "adapters.sqldoc.dialect",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Adapters.SQLDoc.Enabled = true
				c.Adapters.SQLDoc.Dialect = DialectSQLite
				c.Adapters.SQLDoc.Path = ""
			},
			wantField: "adapters.sqldoc.path",
		},
		{
			name: "verify-full without CA",
			mutate: func(c *Config) {
				c.Adapters.SQLDoc.Enabled = true
				c.Adapters.SQLDoc.TLS.Mode = "verify-full"
			},
			wantField: "adapters.sqldoc.tls.ca_file",
		},
		{
			name:      "unknown id generator",
			mutate:    func(c *Config) { c.Adapters.Mock.IDs = "serial" },
			wantField: "adapters.mock.ids",
		},
		{
			name:      "port out of range",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantField: "server.port",
		},
		{
			name: "rate limit without rps",
			mutate: func(c *Config) {
				c.Server.RateLimitEnabled = true
				c.Server.RateLimitBurst = 5
			},
			wantField: "server.rate_limit_rps",
		},
		{
			name: "wildcard CORS with credentials",
			mutate: func(c *Config) {
				c.Server.CORSEnabled = true
				c.Server.CORSAllowedOrigins = []string{"*"}
				c.Server.CORSAllowCredentials = true
			},
			wantField: "server.cors_allowed_origins",
		},
		{
			name: "OIDC without issuer",
			mutate: func(c *Config) {
				c.Server.Auth.OIDCEnabled = true
				c.Server.Auth.OIDCAudience = "harmony"
			},
			wantField: "server.auth.oidc_issuer_url",
		},
		{
			name:      "db roles without auth",
			mutate:    func(c *Config) { c.Server.Auth.DBRoleEnabled = true },
			wantField: "server.auth.db_role_enabled",
		},
		{
			name: "db roles on sqlite",
			mutate: func(c *Config) {
				c.Server.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
				c.Server.Auth.DBRoleEnabled = true
				c.Adapters.SQLDoc.Enabled = true
				c.Adapters.SQLDoc.Dialect = DialectSQLite
			},
			wantField: "server.auth.db_role_enabled",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Observability.Logging.Level = "verbose" },
			wantField: "observability.logging.level",
		},
		{
			name: "bad OTLP http endpoint",
			mutate: func(c *Config) {
				c.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "not a url"}
			},
			wantField: "observability.traces.endpoint",
		},
		{
			name:      "short JWT secret",
			mutate:    func(c *Config) { c.Server.Auth.JWTSecret = "short" },
			wantField: "server.auth.jwt_secret",
			warning:   true,
		},
		{
			name: "skip-verify",
			mutate: func(c *Config) {
				c.Adapters.SQLDoc.Enabled = true
				c.Adapters.SQLDoc.TLS.Mode = "skip-verify"
			},
			wantField: "adapters.sqldoc.tls.mode",
			warning:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			result := cfg.Validate()

			var fields []string
			if tt.warning {
				assert.False(t, result.HasErrors(), result.Error())
				for _, w := range result.Warnings {
					fields = append(fields, w.Field)
				}
			} else {
				require.True(t, result.HasErrors())
				for _, e := range result.Errors {
					fields = append(fields, e.Field)
				}
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestSQLDocDSN(t *testing.T) {
	t.Run("mysql discrete fields", func(t *testing.T) {
		cfg := SQLDocConfig{Dialect: DialectMySQL, Host: "db", User: "harmony", Password: "pw", Database: "todo"}
		dsn, err := cfg.DSN()
		require.NoError(t, err)

		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "db:3306", parsed.Addr)
		assert.Equal(t, "harmony", parsed.User)
		assert.Equal(t, "pw", parsed.Passwd)
		assert.Equal(t, "todo", parsed.DBName)
		assert.True(t, parsed.ParseTime)
		assert.Equal(t, time.UTC, parsed.Loc)

		noDB, err := cfg.DSNWithoutDatabase()
		require.NoError(t, err)
		parsed, err = mysql.ParseDSN(noDB)
		require.NoError(t, err)
		assert.Empty(t, parsed.DBName)
	})

	t.Run("mysql connection string", func(t *testing.T) {
		cfg := SQLDocConfig{Dialect: DialectMySQL, ConnectionString: "u:p@tcp(h:4000)/app", TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		dsn, err := cfg.DSN()
		require.NoError(t, err)
		parsed, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "h:4000", parsed.Addr)
		assert.Equal(t, "skip-verify", parsed.TLSConfig)
		assert.True(t, parsed.ParseTime)

		name, err := cfg.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "app", name)
	})

	t.Run("mysql invalid connection string", func(t *testing.T) {
		cfg := SQLDocConfig{Dialect: DialectMySQL, ConnectionString: "not a dsn"}
		_, err := cfg.DSN()
		assert.Error(t, err)
	})

	t.Run("postgres", func(t *testing.T) {
		cfg := SQLDocConfig{Dialect: DialectPostgres, Host: "db", User: "harmony", Password: "pw", Database: "todo"}
		dsn, err := cfg.DSN()
		require.NoError(t, err)
		assert.Equal(t, "postgres://harmony:pw@db:5432/todo?sslmode=disable", dsn)
		assert.Equal(t, "postgres", cfg.DriverName())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := SQLDocConfig{Dialect: DialectSQLite, Path: "todo.db"}
		dsn, err := cfg.DSN()
		require.NoError(t, err)
		assert.Equal(t, "file:todo.db?_pragma=busy_timeout(5000)", dsn)
		assert.Equal(t, "sqlite", cfg.DriverName())
	})
}

func TestObservabilitySignalConfigs(t *testing.T) {
	obs := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint:    "collector:4317",
			Protocol:    "grpc",
			Headers:     map[string]string{"a": "1"},
			Timeout:     10 * time.Second,
			Compression: "gzip",
		},
		Traces: &OTLPConfig{
			Endpoint: "tempo:4318",
			Protocol: "http/protobuf",
			Insecure: true,
			Headers:  map[string]string{"b": "2"},
		},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "tempo:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.True(t, traces.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, "gzip", traces.Compression)

	assert.Equal(t, obs.OTLP, obs.GetLogsConfig())
	assert.Equal(t, obs.OTLP, obs.GetMetricsConfig())
}
