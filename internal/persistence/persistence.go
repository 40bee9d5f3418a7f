// Package persistence assembles declared models, adapters and scalars into a
// running GraphQL API. Init runs the build pipeline once: sanitize every
// model, bind ids and references to adapters, print the SDL, build the
// resolvers and start the adapters.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/graphql-go/graphql"
	"golang.org/x/sync/errgroup"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/adapter/mock"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/executable"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/resolver"
	"harmony-graphql/internal/sdl"
)

// DefaultAdapter is used by models that name no adapter.
const DefaultAdapter = mock.Name

// ErrNotInitialized is returned by accessors called before Init.
var ErrNotInitialized = errors.New("persistence instance is not initialized")

// Config holds everything an Instance is built from.
type Config struct {
	// Models are compiled in order. Names must map to distinct GraphQL types.
	Models []model.Model
	// Adapters are keyed by the name models refer to. When empty, an
	// in-memory mock adapter is registered as the default.
	Adapters map[string]adapter.Adapter
	// DefaultAdapter names the adapter of models that do not pick one.
	DefaultAdapter string
	// Scalars are custom scalars referenced by raw model fields.
	Scalars map[string]*graphql.Scalar
	// Strict only exposes CRUD root fields for operations with a scope.
	Strict bool
	// Prefix is prepended to synthesized operator type names.
	Prefix string
	// LoaderWait is the batching window of the request loaders.
	LoaderWait time.Duration
	// Events receives CRUD notifications. A bus is created when nil, and
	// only a created bus is closed by Close.
	Events *events.Bus
	Logger *logging.Logger
}

// Instance is a built persistence layer. It is immutable after Init.
type Instance struct {
	cfg       Config
	logger    *logging.Logger
	events    *events.Bus
	ownEvents bool

	mu          sync.Mutex
	initialized bool
	closed      bool

	models    []*model.Sanitized
	sdl       string
	bundles   map[string]*resolver.Bundle
	resolvers *resolver.Map
	accessors model.Accessors
	schema    *executable.Schema
}

// New creates an Instance. Nothing is compiled until Init.
func New(cfg Config) *Instance {
	if cfg.DefaultAdapter == "" {
		cfg.DefaultAdapter = DefaultAdapter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	bus := cfg.Events
	if bus == nil {
		bus = events.NewBus(0)
	}
	return &Instance{
		cfg:       cfg,
		logger:    logger.Component("persistence"),
		events:    bus,
		ownEvents: cfg.Events == nil,
	}
}

// Init compiles the models and starts the adapters. Configuration errors
// abort the build and leave the instance unusable.
func (i *Instance) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.initialized {
		return fmt.Errorf("persistence instance already initialized")
	}

	start := time.Now()
	adapters := i.cfg.Adapters
	if len(adapters) == 0 {
		store, err := mock.New(mock.Config{})
		if err != nil {
			return err
		}
		adapters = map[string]adapter.Adapter{mock.Name: store}
	}

	models, err := SanitizeModels(i.cfg.Models, model.SanitizeOptions{
		Strict:         i.cfg.Strict,
		DefaultAdapter: i.cfg.DefaultAdapter,
	})
	if err != nil {
		return err
	}
	if err := model.TypeIDsAndReferences(models); err != nil {
		return fmt.Errorf("failed to bind references: %w", err)
	}

	printed, err := DefineSchema(models, i.cfg.Prefix, i.cfg.Scalars)
	if err != nil {
		return err
	}

	accessors := model.Accessors{}
	bundles := DefineResolvers(models, adapters, accessors, i.logger)
	DefineModelResolvers(accessors, bundles)

	resolvers, err := resolver.GetResolvers(resolver.GetResolversParams{
		Bundles: bundles,
		Scalars: i.cfg.Scalars,
		Models:  models,
	})
	if err != nil {
		return fmt.Errorf("failed to build resolvers: %w", err)
	}

	schema, err := executable.New(executable.Config{
		SDL:        printed,
		Resolvers:  resolvers,
		LoaderWait: i.cfg.LoaderWait,
	})
	if err != nil {
		return fmt.Errorf("failed to build executable schema: %w", err)
	}

	if err := initializeAdapters(ctx, adapters, bundles, models, i.events, i.logger); err != nil {
		return err
	}

	i.cfg.Adapters = adapters
	i.models = models
	i.sdl = printed
	i.bundles = bundles
	i.resolvers = resolvers
	i.accessors = accessors
	i.schema = schema
	i.initialized = true

	i.logger.Info("persistence initialized",
		"models", len(models),
		"adapters", len(adapters),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// SanitizeModels compiles every declaration and rejects names that collide
// once normalized to GraphQL type names.
func SanitizeModels(decls []model.Model, opts model.SanitizeOptions) ([]*model.Sanitized, error) {
	registry := naming.NewRegistry()
	models := make([]*model.Sanitized, 0, len(decls))
	for _, decl := range decls {
		if _, err := registry.Register(decl.Name); err != nil {
			return nil, err
		}
		m, err := model.Sanitize(decl, opts)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// DefineSchema prints the SDL of models and the custom scalars.
func DefineSchema(models []*model.Sanitized, prefix string, scalars map[string]*graphql.Scalar) (string, error) {
	names := make([]string, 0, len(scalars))
	for name := range scalars {
		names = append(names, name)
	}
	sort.Strings(names)

	printed, err := sdl.NewCompiler(prefix).DefineSchema(models, names)
	if err != nil {
		return "", fmt.Errorf("failed to print schema: %w", err)
	}
	return printed, nil
}

// DefineResolvers builds the resolver bundle of every model. Sanitize has
// already defaulted each model's adapter name. A model whose adapter is not
// registered gets resolvers that return nil. External models keep their
// adapter so references to them resolve to representations.
func DefineResolvers(models []*model.Sanitized, adapters map[string]adapter.Adapter, accessors model.Accessors, logger *logging.Logger) map[string]*resolver.Bundle {
	if logger == nil {
		logger = logging.Nop()
	}
	bundles := make(map[string]*resolver.Bundle, len(models))
	for _, m := range models {
		a, ok := adapters[m.Adapter]
		if !ok {
			logger.Warn("adapter not configured, model operations return null",
				slog.String("model", m.Name),
				slog.String("adapter", m.Adapter),
			)
		}
		bundles[m.GraphQLName] = resolver.MakeResolvers(a, m, accessors)
	}
	return bundles
}

// DefineModelResolvers fills accessors with the operations of every bundle
// so server-side code can call models directly.
func DefineModelResolvers(accessors model.Accessors, bundles map[string]*resolver.Bundle) {
	resolver.BindAccessors(accessors, bundles)
}

// initializeAdapters starts every adapter concurrently, each with the
// models it serves.
func initializeAdapters(ctx context.Context, adapters map[string]adapter.Adapter, bundles map[string]*resolver.Bundle, models []*model.Sanitized, bus *events.Bus, logger *logging.Logger) error {
	served := make(map[adapter.Adapter][]*model.Sanitized, len(adapters))
	for _, m := range models {
		if m.External {
			continue
		}
		if b := bundles[m.GraphQLName]; b != nil && b.Adapter != nil {
			served[b.Adapter] = append(served[b.Adapter], m)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range adapterNames(adapters) {
		a := adapters[name]
		g.Go(func() error {
			if err := a.Initialize(gctx, adapter.InitArgs{
				Models: served[a],
				Events: bus,
				Logger: logger,
			}); err != nil {
				return fmt.Errorf("failed to initialize adapter %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops every adapter concurrently and closes the event bus it
// created. Every adapter is closed even when one fails.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.initialized || i.closed {
		return nil
	}
	i.closed = true

	var (
		g    errgroup.Group
		errs = make([]error, len(i.cfg.Adapters))
	)
	for idx, name := range adapterNames(i.cfg.Adapters) {
		a := i.cfg.Adapters[name]
		g.Go(func() error {
			if err := a.Close(ctx); err != nil {
				errs[idx] = fmt.Errorf("failed to close adapter %q: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if i.ownEvents {
		i.events.Close()
	}
	return errors.Join(errs...)
}

// Detach retires the instance without closing its adapters, so they can
// serve a replacement instance built from the same adapter set.
func (i *Instance) Detach() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.initialized || i.closed {
		return
	}
	i.closed = true
	if i.ownEvents {
		i.events.Close()
	}
}

func adapterNames(adapters map[string]adapter.Adapter) []string {
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the sanitized models in declaration order.
func (i *Instance) Models() []*model.Sanitized {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.models
}

// Model finds a sanitized model by declared or GraphQL name.
func (i *Instance) Model(name string) (*model.Sanitized, bool) {
	return model.Lookup(i.Models(), name)
}

// SDL returns the printed schema.
func (i *Instance) SDL() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sdl
}

// Schema returns the executable schema, or nil before Init.
func (i *Instance) Schema() *executable.Schema {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.schema
}

// Resolvers returns the resolver map the schema was built from.
func (i *Instance) Resolvers() *resolver.Map {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.resolvers
}

// Events returns the bus adapters publish CRUD notifications on.
func (i *Instance) Events() *events.Bus {
	return i.events
}

// Accessor returns the unscoped operations of a model for server-side code.
func (i *Instance) Accessor(name string) (model.Accessor, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.initialized {
		return nil, ErrNotInitialized
	}
	a, ok := i.accessors[naming.TypeName(name)]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	return a, nil
}

// Do executes one GraphQL request against the schema.
func (i *Instance) Do(ctx context.Context, req executable.Request) (*graphql.Result, error) {
	schema := i.Schema()
	if schema == nil {
		return nil, ErrNotInitialized
	}
	return schema.Do(ctx, req), nil
}
