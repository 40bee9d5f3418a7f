package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/middleware"
	"harmony-graphql/internal/observability"
	"harmony-graphql/internal/schemarefresh"
)

// Route paths.
const (
	pathGraphQL = "/graphql"
	pathHealth  = "/health"
	pathSDL     = "/sdl"
	pathMetrics = "/metrics"
	pathReload  = "/admin/reload"
)

const reloadTimeout = 15 * time.Second

func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, verifier middleware.TokenVerifier, tel telemetry) http.Handler {
	var dbRole middleware.Middleware
	if cfg.Server.Auth.DBRoleEnabled {
		dbRole = middleware.DBRole(middleware.DBRoleConfig{
			ClaimName:    cfg.Server.Auth.DBRoleClaimName,
			AllowedRoles: cfg.Server.Auth.DBAllowedRoles,
		}, tel.security)
		logger.Info("database roles enabled", slog.String("claim", cfg.Server.Auth.DBRoleClaimName))
	}
	var metrics middleware.Middleware
	if tel.graphql != nil {
		metrics = middleware.GraphQLMetrics(tel.graphql)
	}
	if verifier == nil {
		logger.Warn("GraphQL endpoint is not authenticated")
	}

	return middleware.Chain(manager.Handler(),
		middleware.RequestLogging(logger),
		middleware.Authenticate(verifier, tel.security),
		dbRole,
		middleware.GraphQLAnalysis(cfg.Server.GraphQLMaxDepth),
		metrics,
		middleware.GraphQLTracing(),
	)
}

// buildAdminHandler returns nil when the reload endpoint is disabled. A
// configured admin token takes precedence over bearer token authentication.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, verifier middleware.TokenVerifier, metrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.ReloadEnabled {
		return nil, nil
	}

	handler := reloadHandler(manager, metrics)
	switch {
	case cfg.Server.Admin.AuthToken != "":
		guard, err := middleware.AdminToken(cfg.Server.Admin.AuthToken, metrics)
		if err != nil {
			return nil, err
		}
		logger.Info("admin endpoints require the admin token")
		return middleware.Chain(handler, middleware.RequestLogging(logger), guard), nil
	case verifier != nil:
		logger.Info("admin endpoints require authentication", slog.String("method", verifier.Method()))
		return middleware.Chain(handler, middleware.RequestLogging(logger), middleware.Authenticate(verifier, metrics)), nil
	default:
		logger.Warn("admin endpoints are not authenticated, set server.admin.auth_token")
		return middleware.Chain(handler, middleware.RequestLogging(logger)), nil
	}
}

type reloadResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Models      int    `json:"models,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func reloadHandler(manager *schemarefresh.Manager, metrics *observability.SecurityMetrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, reloadResponse{Status: "error", Message: "method not allowed"})
			return
		}

		auth, authenticated := middleware.AuthFromContext(r.Context())
		logAttrs := []any{
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("subject", auth.Subject),
				slog.String("auth_method", auth.Method),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
		defer cancel()

		snapshot, err := manager.Reload(ctx)
		if err != nil {
			metrics.RecordAdminRequest(r.Context(), "schema_reload", false)
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, reloadResponse{Status: "error", Message: "schema reload failed"})
			return
		}
		metrics.RecordAdminRequest(r.Context(), "schema_reload", true)
		writeJSON(w, http.StatusOK, reloadResponse{
			Status:      "ok",
			Models:      snapshot.Models,
			Fingerprint: snapshot.Fingerprint,
		})
	})
}

// routes are the handlers mounted by buildRouter. A nil admin handler
// leaves the admin route unmounted.
type routes struct {
	graphql http.Handler
	admin   http.Handler
	health  http.Handler
	sdl     http.Handler
	metrics bool
}

func buildRouter(cfg *config.Config, logger *logging.Logger, r routes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(pathGraphQL, r.graphql)
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			http.Redirect(w, req, pathGraphQL, http.StatusFound)
			return
		}
		http.NotFound(w, req)
	})
	mux.Handle(pathHealth, r.health)

	if cfg.Server.SDLEnabled && r.sdl != nil {
		mux.Handle(pathSDL, r.sdl)
	}
	if r.admin != nil {
		mux.Handle(pathReload, r.admin)
		logger.Info("schema reload endpoint enabled", slog.String("path", pathReload))
	}
	if r.metrics {
		mux.Handle(pathMetrics, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", pathMetrics))
	}
	return mux
}

// healthHandler reports the schema and, when sqldoc is enabled, the
// database. db may be nil.
func healthHandler(db *sql.DB, manager *schemarefresh.Manager, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		body := map[string]string{"status": "healthy", "schema": "ok"}
		status := http.StatusOK

		if manager.CurrentSnapshot() == nil {
			body["status"], body["schema"] = "unhealthy", "unavailable"
			status = http.StatusServiceUnavailable
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				reqLogger.Error("health check failed",
					slog.String("error", err.Error()),
					slog.String("check", "database"),
				)
				body["status"], body["database"] = "unhealthy", "failed"
				status = http.StatusServiceUnavailable
			} else {
				body["database"] = "ok"
			}
		}
		writeJSON(w, status, body)
	})
}

func sdlHandler(manager *schemarefresh.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snapshot := manager.CurrentSnapshot()
		if snapshot == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("ETag", `"`+snapshot.Fingerprint+`"`)
		_, _ = w.Write([]byte(snapshot.SDL()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wrapHTTPHandler applies the process-wide middleware. Rate limiting is
// outermost so rejected requests cost nothing else.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	return middleware.Chain(handler,
		middleware.RateLimit(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		}),
		middleware.CORS(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		}),
	)
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", pathGraphQL, pathHealth, pathSDL, pathMetrics, pathReload:
		return rawPath
	default:
		return "/*"
	}
}
