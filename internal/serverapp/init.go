package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"harmony-graphql/internal/events"
)

// Init acquires every runtime resource. Resources acquired before a failure
// are released again. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		provider := a.loggerProvider
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return provider.Shutdown(shutdownCtx, a.logger)
		})
	}

	tel, err := initTelemetry(a.cfg, a.logger, &cleanup)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, a.cfg, a.logger, tel)
	if err != nil {
		return err
	}
	if store.db != nil {
		cleanup.push("database", store.close)
	}

	bus := events.NewBus(a.cfg.Models.EventBuffer)
	cleanup.push("event bus", func(context.Context) error {
		bus.Close()
		return nil
	})

	adapters, err := buildAdapters(a.cfg, store)
	if err != nil {
		return fmt.Errorf("failed to initialize adapters: %w", err)
	}

	manager, cancelWatch, err := startSchemaManager(ctx, a.cfg, a.logger, tel.reload, schemaBuilder(a.cfg, a.logger, adapters, bus))
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	cleanup.push("schema manager", func(shutdownCtx context.Context) error {
		cancelWatch()
		if err := manager.Wait(shutdownCtx); err != nil {
			a.logger.Warn("model file watcher did not stop", slog.String("error", err.Error()))
		}
		return manager.Close(shutdownCtx)
	})

	verifier, err := buildVerifier(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}
	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, manager, verifier, tel)
	adminHandler, err := buildAdminHandler(a.cfg, a.logger, manager, verifier, tel.security)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}
	mux := buildRouter(a.cfg, a.logger, routes{
		graphql: graphqlHandler,
		admin:   adminHandler,
		health:  healthHandler(store.db, manager, a.cfg.Server.HealthCheckTimeout),
		sdl:     sdlHandler(manager),
		metrics: tel.meter != nil,
	})
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, tlsSource, err := buildServer(a.cfg, a.logger, handler, serverAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	cleanup.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	a.telemetry = tel
	a.db = store.db
	a.bus = bus
	a.schema = manager
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.tlsSource = tlsSource
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
