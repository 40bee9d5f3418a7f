package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, for example
// HARMONY_SERVER_PORT or HARMONY_ADAPTERS_SQLDOC_DSN.
const EnvPrefix = "HARMONY"

// passwordPrompt reads the sqldoc password; tests replace it.
var passwordPrompt = promptPassword

// Load loads configuration with the following precedence:
// 1. Explicit overrides (v.Set), used for secrets read from files or a prompt
// 2. Command line flags that were set on fs
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs may be nil, in which case flags are ignored.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath := ""
	if fs != nil {
		cfgPath, _ = fs.GetString("config")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("harmony")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/harmony/")
		v.AddConfigPath("$HOME/.harmony")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys are dot + snake_case; env vars replace dots with "_".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		bindChangedFlagsToViper(v, fs)
	}
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := resolveSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// resolveSecrets fills secrets from their *_file settings or the password
// prompt. Inline values win.
func resolveSecrets(v *viper.Viper) error {
	if v.GetString("adapters.sqldoc.dsn") == "" && v.GetString("adapters.sqldoc.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("adapters.sqldoc.dsn_file"))
		if err != nil {
			return fmt.Errorf("failed to read sqldoc DSN file: %w", err)
		}
		v.Set("adapters.sqldoc.dsn", dsn)
	}

	if v.GetString("adapters.sqldoc.password") == "" && v.GetString("adapters.sqldoc.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("adapters.sqldoc.password_file"))
		if err != nil {
			return fmt.Errorf("failed to read sqldoc password file: %w", err)
		}
		v.Set("adapters.sqldoc.password", pwd)
	}
	if v.GetBool("adapters.sqldoc.enabled") &&
		v.GetString("adapters.sqldoc.dsn") == "" &&
		v.GetString("adapters.sqldoc.password") == "" &&
		v.GetBool("adapters.sqldoc.password_prompt") {
		pwd, err := passwordPrompt()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("adapters.sqldoc.password", pwd)
	}

	if v.GetString("server.auth.jwt_secret") == "" && v.GetString("server.auth.jwt_secret_file") != "" {
		path := v.GetString("server.auth.jwt_secret_file")
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JWT secret file: %w", err)
		}
		if secret == "" {
			return fmt.Errorf("JWT secret file %q is empty", path)
		}
		v.Set("server.auth.jwt_secret", secret)
	}

	if v.GetString("server.admin.auth_token") == "" && v.GetString("server.admin.auth_token_file") != "" {
		path := v.GetString("server.admin.auth_token_file")
		token, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read admin token file: %w", err)
		}
		if token == "" {
			return fmt.Errorf("admin token file %q is empty", path)
		}
		v.Set("server.admin.auth_token", token)
	}
	return nil
}

// bindChangedFlagsToViper copies only explicitly set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" || !strings.Contains(f.Name, ".") {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags defines the configuration flags on fs using canonical
// snake_case keys. Flags without a dot are command options and are not
// bound to configuration.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file path")

	// Models
	fs.String("models.file", "", "Path to the YAML model file")
	fs.Bool("models.watch", false, "Rebuild the schema when the model file changes")
	fs.Duration("models.watch_debounce", 0, "Delay before rebuilding after a model file change")
	fs.Bool("models.strict", false, "Only expose operations that declare a scope")
	fs.String("models.prefix", "", "Prefix for generated GraphQL type names")
	fs.String("models.default_adapter", "", "Adapter for models that do not name one")

	// Adapters
	fs.Bool("adapters.mock.enabled", false, "Enable the in-memory adapter")
	fs.String("adapters.mock.snapshot_path", "", "File the in-memory adapter loads on start and writes on stop")
	fs.String("adapters.mock.ids", "", "Id generator of the in-memory adapter (uuid, nanoid)")
	fs.Bool("adapters.sqldoc.enabled", false, "Enable the SQL document adapter")
	fs.String("adapters.sqldoc.dialect", "", "SQL dialect (mysql, postgres, sqlite)")
	fs.String("adapters.sqldoc.dsn", "", "Complete driver DSN")
	fs.String("adapters.sqldoc.dsn_file", "", "Path to file containing the DSN (use @- for stdin)")
	fs.String("adapters.sqldoc.host", "", "Database host")
	fs.Int("adapters.sqldoc.port", 0, "Database port")
	fs.String("adapters.sqldoc.user", "", "Database user")
	fs.String("adapters.sqldoc.password", "", "Database password")
	fs.String("adapters.sqldoc.password_file", "", "Path to file containing the database password (use @- for stdin)")
	fs.Bool("adapters.sqldoc.password_prompt", false, "Prompt for the database password")
	fs.String("adapters.sqldoc.database", "", "Database name")
	fs.String("adapters.sqldoc.path", "", "Database file for the sqlite dialect")
	fs.String("adapters.sqldoc.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("adapters.sqldoc.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.String("adapters.sqldoc.tls.cert_file", "", "Path to client certificate for mTLS")
	fs.String("adapters.sqldoc.tls.key_file", "", "Path to client private key for mTLS")
	fs.Int("adapters.sqldoc.pool.max_open", 0, "Maximum open database connections")
	fs.Int("adapters.sqldoc.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("adapters.sqldoc.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.Duration("adapters.sqldoc.connection_timeout", 0, "Max time to wait for the database on startup (0 = fail immediately)")
	fs.Duration("adapters.sqldoc.connection_retry_interval", 0, "Initial interval between connection retries")
	fs.String("adapters.sqldoc.ids", "", "Id generator of the SQL document adapter (uuid, nanoid)")
	fs.String("adapters.sqldoc.naming.table_prefix", "", "Prefix for document table names")

	// Server
	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.graphiql_enabled", false, "Serve GraphiQL on GET /graphql (dev only)")
	fs.Bool("server.playground_enabled", false, "Serve GraphQL Playground on GET /graphql (dev only)")
	fs.Bool("server.pretty_json", false, "Indent GraphQL responses")
	fs.Bool("server.sdl_enabled", false, "Serve the generated SDL on /sdl")
	fs.Duration("server.loader_wait", 0, "Batch window of reference loaders")
	fs.Int("server.graphql_max_depth", 0, "Reject GraphQL operations deeper than this (0 disables)")
	fs.Bool("server.admin.reload_enabled", false, "Expose POST /admin/reload")
	fs.String("server.admin.auth_token", "", "Bearer token required by admin endpoints")
	fs.String("server.admin.auth_token_file", "", "Path to file containing the admin token (use @- for stdin)")
	fs.Bool("server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	fs.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
	fs.Duration("server.auth.oidc_clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")
	fs.Bool("server.auth.oidc_skip_tls_verify", false, "Skip TLS verification for the OIDC provider (dev only)")
	fs.String("server.auth.jwt_secret", "", "Shared secret for HS256 bearer tokens")
	fs.String("server.auth.jwt_secret_file", "", "Path to file containing the JWT secret (use @- for stdin)")
	fs.String("server.auth.jwt_issuer", "", "Expected issuer of HS256 bearer tokens")
	fs.String("server.auth.jwt_audience", "", "Expected audience of HS256 bearer tokens")
	fs.Bool("server.auth.db_role_enabled", false, "Switch database role per request (SET ROLE)")
	fs.String("server.auth.db_role_claim_name", "", "Token claim naming the database role (default: db_role)")
	fs.StringSlice("server.auth.db_allowed_roles", nil, "Database roles callers may switch to")
	fs.Bool("server.rate_limit_enabled", false, "Enable global rate limiting")
	fs.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
	fs.Bool("server.cors_enabled", false, "Enable CORS")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
	fs.StringSlice("server.cors_expose_headers", nil, "CORS headers exposed to the browser")
	fs.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
	fs.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")
	fs.String("server.tls_mode", "", "TLS mode: off, auto (self-signed), file")
	fs.String("server.tls_cert_file", "", "Path to TLS certificate file (file mode)")
	fs.String("server.tls_key_file", "", "Path to TLS private key file (file mode)")
	fs.String("server.tls_auto_cert_dir", "", "Directory for auto-generated certificates")

	// Observability
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("models.file", "models.yaml")
	v.SetDefault("models.watch", false)
	v.SetDefault("models.watch_debounce", 250*time.Millisecond)
	v.SetDefault("models.strict", false)
	v.SetDefault("models.prefix", "")
	v.SetDefault("models.default_adapter", "")
	v.SetDefault("models.event_buffer", 64)

	v.SetDefault("adapters.mock.enabled", true)
	v.SetDefault("adapters.mock.snapshot_path", "")
	v.SetDefault("adapters.mock.ids", "uuid")

	v.SetDefault("adapters.sqldoc.enabled", false)
	v.SetDefault("adapters.sqldoc.dialect", "mysql")
	v.SetDefault("adapters.sqldoc.dsn", "")
	v.SetDefault("adapters.sqldoc.dsn_file", "")
	v.SetDefault("adapters.sqldoc.host", "localhost")
	v.SetDefault("adapters.sqldoc.port", 0)
	v.SetDefault("adapters.sqldoc.user", "harmony")
	v.SetDefault("adapters.sqldoc.password", "")
	v.SetDefault("adapters.sqldoc.password_file", "")
	v.SetDefault("adapters.sqldoc.password_prompt", false)
	v.SetDefault("adapters.sqldoc.database", "harmony")
	v.SetDefault("adapters.sqldoc.path", "harmony.db")
	v.SetDefault("adapters.sqldoc.tls.mode", "")
	v.SetDefault("adapters.sqldoc.tls.ca_file", "")
	v.SetDefault("adapters.sqldoc.tls.ca_file_env", "")
	v.SetDefault("adapters.sqldoc.tls.cert_file", "")
	v.SetDefault("adapters.sqldoc.tls.cert_file_env", "")
	v.SetDefault("adapters.sqldoc.tls.key_file", "")
	v.SetDefault("adapters.sqldoc.tls.key_file_env", "")
	v.SetDefault("adapters.sqldoc.tls.server_name", "")
	v.SetDefault("adapters.sqldoc.pool.max_open", 25)
	v.SetDefault("adapters.sqldoc.pool.max_idle", 5)
	v.SetDefault("adapters.sqldoc.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("adapters.sqldoc.connection_timeout", 60*time.Second)
	v.SetDefault("adapters.sqldoc.connection_retry_interval", 2*time.Second)
	v.SetDefault("adapters.sqldoc.ids", "uuid")
	v.SetDefault("adapters.sqldoc.naming.table_prefix", "")
	v.SetDefault("adapters.sqldoc.naming.plural_overrides", map[string]string{})
	v.SetDefault("adapters.sqldoc.naming.singular_overrides", map[string]string{})

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.playground_enabled", false)
	v.SetDefault("server.pretty_json", false)
	v.SetDefault("server.sdl_enabled", true)
	v.SetDefault("server.loader_wait", 2*time.Millisecond)
	v.SetDefault("server.graphql_max_depth", 0)
	v.SetDefault("server.admin.reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_skip_tls_verify", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.jwt_issuer", "")
	v.SetDefault("server.auth.jwt_audience", "")
	v.SetDefault("server.auth.db_role_enabled", false)
	v.SetDefault("server.auth.db_role_claim_name", "db_role")
	v.SetDefault("server.auth.db_allowed_roles", []string{})
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_auto_cert_dir", ".harmony/tls")

	v.SetDefault("observability.service_name", "harmony-graphql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret from path, or stdin for "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"adapters.sqldoc.dsn_file",
		"adapters.sqldoc.password_file",
		"server.auth.jwt_secret_file",
		"server.admin.auth_token_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
