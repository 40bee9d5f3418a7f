package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Models.validate(result)
	c.Adapters.validate(result, c.Models.DefaultAdapter)
	c.Server.validate(result)
	c.validateRoles(result)
	c.Observability.validate(result)
	return result
}

var validIDGenerators = map[string]bool{"": true, "uuid": true, "nanoid": true}

func (m *ModelsConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(m.File) == "" {
		result.addError("models.file", "a model file is required", "point models.file at a YAML model file")
	}
	if m.WatchDebounce < 0 {
		result.addError("models.watch_debounce", "watch_debounce cannot be negative", "")
	}
	if m.EventBuffer < 0 {
		result.addError("models.event_buffer", "event_buffer cannot be negative", "")
	}
}

func (a *AdaptersConfig) validate(result *ValidationResult, defaultAdapter string) {
	if !a.Mock.Enabled && !a.SQLDoc.Enabled {
		result.addError("adapters", "no adapter is enabled", "enable adapters.mock or adapters.sqldoc")
	}
	if !validIDGenerators[a.Mock.IDs] {
		result.addError("adapters.mock.ids", fmt.Sprintf("unknown id generator %q", a.Mock.IDs), "valid values are: uuid, nanoid")
	}
	switch defaultAdapter {
	case "":
	case "mock":
		if !a.Mock.Enabled {
			result.addError("models.default_adapter", "default adapter mock is not enabled", "set adapters.mock.enabled=true")
		}
	case "sqldoc":
		if !a.SQLDoc.Enabled {
			result.addError("models.default_adapter", "default adapter sqldoc is not enabled", "set adapters.sqldoc.enabled=true")
		}
	default:
		result.addError("models.default_adapter", fmt.Sprintf("unknown adapter %q", defaultAdapter), "valid values are: mock, sqldoc")
	}
	if a.SQLDoc.Enabled {
		a.SQLDoc.validate(result)
	}
}

func (d *SQLDocConfig) validate(result *ValidationResult) {
	const prefix = "adapters.sqldoc."

	switch d.Dialect {
	case DialectMySQL, DialectPostgres:
		if d.ConnectionString == "" && strings.TrimSpace(d.Host) == "" {
			result.addError(prefix+"host", "host is required when no dsn is set", "")
		}
		if d.ConnectionString == "" && (d.Port < 0 || d.Port > 65535) {
			result.addError(prefix+"port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
		}
	case DialectSQLite:
		if d.ConnectionString == "" && strings.TrimSpace(d.Path) == "" {
			result.addError(prefix+"path", "path is required for the sqlite dialect", "use :memory: for a throwaway database")
		}
		if d.TLS.Mode != "" && d.TLS.Mode != "off" {
			result.addWarning(prefix+"tls.mode", "TLS settings are ignored by the sqlite dialect", "")
		}
	default:
		result.addError(prefix+"dialect", fmt.Sprintf("unsupported dialect %q", d.Dialect), "valid values are: mysql, postgres, sqlite")
		return
	}

	if d.Dialect == DialectMySQL {
		if _, err := d.EffectiveDatabaseName(); err != nil {
			result.addError(prefix+"database", err.Error(), "")
		}
	}

	if !validIDGenerators[d.IDs] {
		result.addError(prefix+"ids", fmt.Sprintf("unknown id generator %q", d.IDs), "valid values are: uuid, nanoid")
	}

	d.TLS.validate(prefix+"tls", result)

	if d.Pool.MaxOpen < 0 {
		result.addError(prefix+"pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError(prefix+"pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning(prefix+"pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.addError(prefix+"connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError(prefix+"connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError(prefix+"connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning(prefix+"connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (t *DatabaseTLSConfig) validate(prefix string, result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError(prefix+".mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.resolveCAFile() == "" {
		result.addError(prefix+".ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file or ca_file_env")
	}
	if (t.resolveCertFile() == "") != (t.resolveKeyFile() == "") {
		result.addError(prefix+".cert_file", "both cert_file and key_file must be specified for client certificate authentication", "provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning(prefix+".mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.LoaderWait < 0 {
		result.addError("server.loader_wait", "loader_wait cannot be negative", "")
	}
	if s.GraphQLMaxDepth < 0 {
		result.addError("server.graphql_max_depth", "graphql_max_depth cannot be negative", "use 0 to disable the limit")
	}
	if s.Admin.ReloadEnabled && s.Admin.AuthToken == "" && !s.Auth.OIDCEnabled && !s.Auth.JWTEnabled() {
		result.addWarning("server.admin.reload_enabled", "admin reload is enabled without any authentication", "set server.admin.auth_token")
	}
	if s.GraphiQLEnabled && s.PlaygroundEnabled {
		result.addWarning("server.playground_enabled", "both GraphiQL and Playground are enabled", "Playground takes precedence")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled", "enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		s.validateCORS(result)
	}

	s.Auth.validate(result)

	validTLSModes := map[string]bool{"": true, "off": true, "auto": true, "file": true}
	if !validTLSModes[s.TLSMode] {
		result.addError("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, auto, file")
	}
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.addError("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.addError("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	}
}

func (s *ServerConfig) validateCORS(result *ValidationResult) {
	if len(s.CORSAllowedOrigins) == 0 {
		result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		return
	}
	hasWildcard := false
	for _, origin := range s.CORSAllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			hasWildcard = true
			break
		}
	}
	if hasWildcard && s.CORSAllowCredentials {
		result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
	}
	if hasWildcard {
		result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		}
		if a.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
		if a.JWTEnabled() {
			result.addError("server.auth.jwt_secret", "jwt_secret cannot be combined with OIDC", "use either OIDC or a shared secret")
		}
	}
	if a.JWTEnabled() && len(a.JWTSecret) < 32 {
		result.addWarning("server.auth.jwt_secret", "jwt_secret is shorter than 32 bytes", "use a longer random secret")
	}
	if a.DBRoleEnabled {
		if !a.OIDCEnabled && !a.JWTEnabled() {
			result.addError("server.auth.db_role_enabled", "db_role_enabled requires authentication", "enable OIDC or set server.auth.jwt_secret")
		}
		if strings.TrimSpace(a.DBRoleClaimName) == "" {
			result.addError("server.auth.db_role_claim_name", "claim name cannot be empty when db_role_enabled is true", "")
		}
	}
}

func (c *Config) validateRoles(result *ValidationResult) {
	if !c.Server.Auth.DBRoleEnabled {
		return
	}
	if !c.Adapters.SQLDoc.Enabled {
		result.addWarning("server.auth.db_role_enabled", "db_role_enabled has no effect without the sqldoc adapter", "")
		return
	}
	if c.Adapters.SQLDoc.Dialect == DialectSQLite {
		result.addError("server.auth.db_role_enabled", "the sqlite dialect has no roles", "disable db_role_enabled or use mysql or postgres")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
