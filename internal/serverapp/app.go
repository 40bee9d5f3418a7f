// Package serverapp assembles the HTTP server: telemetry, the sqldoc
// database, the storage adapters, the schema manager and the routes.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/executable"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
	"harmony-graphql/internal/schemarefresh"
	"harmony-graphql/internal/tlscert"
)

// App owns the runtime resources of one server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	telemetry      telemetry

	db     *sql.DB
	bus    *events.Bus
	schema *schemarefresh.Manager

	handler    http.Handler
	serverAddr string
	srv        *http.Server
	tlsSource  tlscert.Source

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers the OTLP logger provider so Shutdown
// flushes it last.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Schema returns the schema manager. It is nil before Init.
func (a *App) Schema() *schemarefresh.Manager {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.schema
}

// Do runs one operation against the active schema without going through
// HTTP.
func (a *App) Do(ctx context.Context, req executable.Request) (*graphql.Result, error) {
	manager := a.Schema()
	if manager == nil {
		return nil, fmt.Errorf("app is not initialized")
	}
	snapshot := manager.CurrentSnapshot()
	if snapshot == nil {
		return nil, fmt.Errorf("schema is not available")
	}
	return snapshot.Instance.Do(ctx, req)
}
