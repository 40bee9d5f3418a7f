// Package executable turns printed SDL and a resolver map into a runnable
// graphql-go schema. It also adds the federation root fields _service and
// _entities so the service can sit behind a gateway.
package executable

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"harmony-graphql/internal/resolver"
)

const (
	queryType    = "Query"
	mutationType = "Mutation"

	anyScalar    = "_Any"
	serviceType  = "_Service"
	entityUnion  = "_Entity"
	keyDirective = "key"
	typenameKey  = "__typename"
)

var builtinScalars = map[string]*graphql.Scalar{
	"String":  graphql.String,
	"Int":     graphql.Int,
	"Float":   graphql.Float,
	"Boolean": graphql.Boolean,
	"ID":      graphql.ID,
}

// Config defines the inputs of New.
type Config struct {
	SDL       string
	Resolvers *resolver.Map

	// LoaderWait is the batching window of the per-request loaders.
	LoaderWait time.Duration
}

// Schema is an executable schema together with the SDL it was built from.
type Schema struct {
	schema     graphql.Schema
	sdl        string
	loaderWait time.Duration
}

// Request is one GraphQL operation.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// HandlerConfig controls the HTTP handler returned by Schema.Handler.
type HandlerConfig struct {
	Pretty     bool
	GraphiQL   bool
	Playground bool
}

// New parses cfg.SDL and binds every field to its resolver in cfg.Resolvers.
// Fields without a resolver read the property of the same name from the
// parent value.
func New(cfg Config) (*Schema, error) {
	resolvers := cfg.Resolvers
	if resolvers == nil {
		resolvers = resolver.NewMap()
	}
	wait := cfg.LoaderWait
	if wait <= 0 {
		wait = resolver.DefaultLoaderWait
	}

	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: cfg.SDL})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	defs, order, err := mergeDefinitions(doc)
	if err != nil {
		return nil, err
	}

	b := &builder{
		defs:      defs,
		order:     order,
		sdl:       cfg.SDL,
		resolvers: resolvers,
		scalars:   make(map[string]*graphql.Scalar),
		enums:     make(map[string]*graphql.Enum),
		objects:   make(map[string]*graphql.Object),
		inputs:    make(map[string]*graphql.InputObject),
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	schemaConfig := b.build()

	schema, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	return &Schema{schema: schema, sdl: cfg.SDL, loaderWait: wait}, nil
}

// GraphQL returns the underlying graphql-go schema.
func (s *Schema) GraphQL() *graphql.Schema {
	return &s.schema
}

// SDL returns the schema document the schema was built from.
func (s *Schema) SDL() string {
	return s.sdl
}

// WithLoaders attaches a fresh loader set to ctx. Every request gets its own
// set so loader caches never outlive it.
func (s *Schema) WithLoaders(ctx context.Context) context.Context {
	return resolver.WithLoaders(ctx, resolver.NewLoaders(s.loaderWait))
}

// Do executes one request in-process.
func (s *Schema) Do(ctx context.Context, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        s.WithLoaders(ctx),
	})
}

// Handler serves the schema over HTTP.
func (s *Schema) Handler(cfg HandlerConfig) http.Handler {
	h := handler.New(&handler.Config{
		Schema:     &s.schema,
		Pretty:     cfg.Pretty,
		GraphiQL:   cfg.GraphiQL,
		Playground: cfg.Playground,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(s.WithLoaders(r.Context())))
	})
}

// mergeDefinitions folds type extensions into their definitions. Generated
// SDL only extends Query and Mutation, and external models are printed as
// extensions without a base type, so both forms are accepted alike.
func mergeDefinitions(doc *ast.SchemaDocument) (map[string]*ast.Definition, []string, error) {
	defs := make(map[string]*ast.Definition)
	var order []string

	all := make(ast.DefinitionList, 0, len(doc.Definitions)+len(doc.Extensions))
	all = append(all, doc.Definitions...)
	all = append(all, doc.Extensions...)

	for _, def := range all {
		merged, ok := defs[def.Name]
		if !ok {
			copied := *def
			copied.Fields = append(ast.FieldList(nil), def.Fields...)
			copied.EnumValues = append(ast.EnumValueList(nil), def.EnumValues...)
			copied.Directives = append(ast.DirectiveList(nil), def.Directives...)
			defs[def.Name] = &copied
			order = append(order, def.Name)
			continue
		}
		if merged.Kind != def.Kind {
			return nil, nil, fmt.Errorf("type %s is declared as both %s and %s", def.Name, merged.Kind, def.Kind)
		}
		for _, field := range def.Fields {
			if merged.Fields.ForName(field.Name) != nil {
				return nil, nil, fmt.Errorf("field %s.%s is declared twice", def.Name, field.Name)
			}
			merged.Fields = append(merged.Fields, field)
		}
		merged.EnumValues = append(merged.EnumValues, def.EnumValues...)
		merged.Directives = append(merged.Directives, def.Directives...)
	}
	return defs, order, nil
}
