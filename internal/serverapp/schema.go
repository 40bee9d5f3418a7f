package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/adapter/mock"
	"harmony-graphql/internal/adapter/sqldoc"
	"harmony-graphql/internal/config"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/executable"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/middleware"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/modelfile"
	"harmony-graphql/internal/observability"
	"harmony-graphql/internal/persistence"
	"harmony-graphql/internal/schemarefresh"
)

// jwtLeeway tolerates clock differences on shared secret tokens.
const jwtLeeway = time.Minute

// buildAdapters creates the enabled adapters once. Every schema rebuild
// reuses them, so mock data survives reloads.
func buildAdapters(cfg *config.Config, s *store) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter, 2)
	if cfg.Adapters.Mock.Enabled {
		a, err := mock.New(mock.Config{
			SnapshotPath: cfg.Adapters.Mock.SnapshotPath,
			IDs:          cfg.Adapters.Mock.IDs,
		})
		if err != nil {
			return nil, fmt.Errorf("mock: %w", err)
		}
		adapters[mock.Name] = a
	}
	if cfg.Adapters.SQLDoc.Enabled {
		if s == nil || s.executor == nil {
			return nil, fmt.Errorf("sqldoc: no database connection")
		}
		a, err := sqldoc.New(s.executor, sqldoc.Config{
			Dialect: cfg.Adapters.SQLDoc.Dialect,
			IDs:     cfg.Adapters.SQLDoc.IDs,
			Naming:  cfg.Adapters.SQLDoc.Naming,
		})
		if err != nil {
			return nil, fmt.Errorf("sqldoc: %w", err)
		}
		adapters[sqldoc.Name] = a
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapter is enabled")
	}
	return adapters, nil
}

// modelOptions merges the model file options with the configured overrides.
// Configured values win, and strict mode applies when either asks for it.
func modelOptions(cfg config.ModelsConfig, file *modelfile.File, adapters map[string]adapter.Adapter) (strict bool, prefix, defaultAdapter string) {
	strict = cfg.Strict || file.Strict
	prefix = file.Prefix
	if cfg.Prefix != "" {
		prefix = cfg.Prefix
	}
	defaultAdapter = file.DefaultAdapter
	if cfg.DefaultAdapter != "" {
		defaultAdapter = cfg.DefaultAdapter
	}
	if defaultAdapter == "" {
		defaultAdapter = persistence.DefaultAdapter
		if _, ok := adapters[defaultAdapter]; !ok {
			defaultAdapter = sqldoc.Name
		}
	}
	return strict, prefix, defaultAdapter
}

// schemaBuilder compiles a model file into a persistence instance on the
// shared adapters and event bus.
func schemaBuilder(cfg *config.Config, logger *logging.Logger, adapters map[string]adapter.Adapter, bus *events.Bus) schemarefresh.BuildFunc {
	return func(ctx context.Context, file *modelfile.File) (*persistence.Instance, error) {
		decls, err := file.Declarations(modelfile.Hooks{})
		if err != nil {
			return nil, err
		}
		strict, prefix, defaultAdapter := modelOptions(cfg.Models, file, adapters)
		instance := persistence.New(persistence.Config{
			Models:         decls,
			Adapters:       adapters,
			DefaultAdapter: defaultAdapter,
			Strict:         strict,
			Prefix:         prefix,
			LoaderWait:     cfg.Server.LoaderWait,
			Events:         bus,
			Logger:         logger,
		})
		if err := instance.Init(ctx); err != nil {
			return nil, err
		}
		return instance, nil
	}
}

// SchemaSDL compiles the configured model file to SDL without opening any
// adapter.
func SchemaSDL(cfg *config.Config) (string, error) {
	file, err := modelfile.Load(cfg.Models.File)
	if err != nil {
		return "", err
	}
	decls, err := file.Declarations(modelfile.Hooks{})
	if err != nil {
		return "", err
	}
	enabled := make(map[string]adapter.Adapter, 2)
	if cfg.Adapters.Mock.Enabled {
		enabled[mock.Name] = nil
	}
	if cfg.Adapters.SQLDoc.Enabled {
		enabled[sqldoc.Name] = nil
	}
	strict, prefix, defaultAdapter := modelOptions(cfg.Models, file, enabled)
	models, err := persistence.SanitizeModels(decls, model.SanitizeOptions{
		Strict:         strict,
		DefaultAdapter: defaultAdapter,
	})
	if err != nil {
		return "", err
	}
	if err := model.TypeIDsAndReferences(models); err != nil {
		return "", fmt.Errorf("failed to bind references: %w", err)
	}
	return persistence.DefineSchema(models, prefix, nil)
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *observability.ReloadMetrics, build schemarefresh.BuildFunc) (*schemarefresh.Manager, context.CancelFunc, error) {
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		ModelFile: cfg.Models.File,
		Build:     build,
		Handler: executable.HandlerConfig{
			Pretty:     cfg.Server.PrettyJSON,
			GraphiQL:   cfg.Server.GraphiQLEnabled,
			Playground: cfg.Server.PlaygroundEnabled,
		},
		Watch:    cfg.Models.Watch,
		Debounce: cfg.Models.WatchDebounce,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if err := manager.Start(watchCtx); err != nil {
		cancel()
		_ = manager.Close(ctx)
		return nil, nil, err
	}
	return manager, cancel, nil
}

// buildVerifier returns the bearer token verifier, or nil when
// authentication is off. OIDC and shared secret tokens are exclusive.
func buildVerifier(ctx context.Context, cfg *config.Config, logger *logging.Logger) (middleware.TokenVerifier, error) {
	auth := cfg.Server.Auth
	switch {
	case auth.OIDCEnabled:
		v, err := middleware.NewOIDCVerifier(ctx, middleware.OIDCConfig{
			IssuerURL:     auth.OIDCIssuerURL,
			Audience:      auth.OIDCAudience,
			ClockSkew:     auth.OIDCClockSkew,
			SkipTLSVerify: auth.OIDCSkipTLSVerify,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("OIDC authentication enabled", slog.String("issuer", auth.OIDCIssuerURL))
		return v, nil
	case auth.JWTEnabled():
		v, err := middleware.NewJWTVerifier(middleware.JWTConfig{
			Secret:   auth.JWTSecret,
			Issuer:   auth.JWTIssuer,
			Audience: auth.JWTAudience,
			Leeway:   jwtLeeway,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("shared secret JWT authentication enabled")
		return v, nil
	}
	return nil, nil
}
