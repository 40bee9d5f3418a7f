// Package resolver binds sanitized models to their adapters. It builds the
// scoped and unscoped CRUD resolvers of each model, the batched reference
// resolvers, and merges everything into the resolver map the executable
// schema is built from.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/document"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/observability"
)

// CrudFunc runs one CRUD operation.
type CrudFunc func(ctx context.Context, p model.Params) (any, error)

// Internal is the pair of resolvers built for one operation.
type Internal struct {
	// Scoped runs scope, adapter and transform.
	Scoped CrudFunc
	// Unscoped only calls the adapter.
	Unscoped CrudFunc
}

// ReferenceParams describe one reference lookup. FieldName is read from
// Source; ForeignField is the field of the target model matched against it.
// A direct reference reads the foreign key from the source and matches _id;
// a reversed reference reads the source _id and matches the foreign field.
type ReferenceParams struct {
	Source       any
	FieldName    string
	ForeignField string
	Info         graphql.ResolveInfo
}

// ReferenceFunc resolves a reference. The result may be a GraphQL thunk that
// completes once the request's loaders dispatch their batch.
type ReferenceFunc func(ctx context.Context, p ReferenceParams) (any, error)

// Bundle holds every resolver built for one model.
type Bundle struct {
	Model   *model.Sanitized
	Adapter adapter.Adapter
	// Ops holds one entry per operation and per alias.
	Ops map[model.Alias]Internal
	// Reference resolves a single entity, References a list of them.
	Reference  ReferenceFunc
	References ReferenceFunc
}

// Op returns the resolvers of an operation or alias.
func (b *Bundle) Op(alias model.Alias) (Internal, bool) {
	op, ok := b.Ops[alias]
	return op, ok
}

// MakeResolvers builds the bundle of m bound to a. The accessors registry is
// handed to scopes and transforms and may be filled after the call. A nil
// adapter yields resolvers that return nil.
func MakeResolvers(a adapter.Adapter, m *model.Sanitized, accessors model.Accessors) *Bundle {
	b := &Bundle{
		Model:   m,
		Adapter: a,
		Ops:     make(map[model.Alias]Internal),
	}

	for _, def := range model.Operations {
		internal := Internal{
			Scoped:   makeCall(a, m, def.Op, m.Scopes[def.Op], m.Transforms[def.Op], accessors),
			Unscoped: makeCall(a, m, def.Op, nil, nil, accessors),
		}
		b.Ops[model.Alias(def.Op)] = internal
		for _, alias := range def.Aliases {
			b.Ops[alias] = internal
		}
	}

	b.Reference = makeReferenceResolver(a, m, false)
	b.References = makeReferenceResolver(a, m, true)
	return b
}

func makeCall(a adapter.Adapter, m *model.Sanitized, op model.Operation, scope model.ScopeFunc, transform model.TransformFunc, accessors model.Accessors) CrudFunc {
	if a == nil {
		return func(context.Context, model.Params) (any, error) {
			return nil, nil
		}
	}

	field := m.RootField(op)
	spanName := "harmony.resolver." + string(op)
	return func(ctx context.Context, p model.Params) (value any, err error) {
		ctx, span := startResolverSpan(ctx, spanName, operationAttributes(m.Name, string(op), field)...)
		start := time.Now()
		defer func() {
			observability.GraphQLMetricsFromContext(ctx).RecordOperation(ctx, m.Name, string(op), a.Name(), time.Since(start), err)
			finishResolverSpan(span, err, "")
			span.End()
		}()

		if p.Field == "" {
			p.Field = field
		}
		if p.Resolvers == nil {
			p.Resolvers = accessors
		}

		if scope != nil {
			scoped, scopeErr := scope(ctx, p)
			switch {
			case scopeErr != nil:
				err = scopeErr
			case scoped != nil:
				p.Args = scoped
			}
		}

		if err == nil {
			value, err = adapter.Dispatch(ctx, a, m, op, p.Args)
		}

		if transform != nil {
			value, err = transform(ctx, model.TransformParams{Params: p, Value: value, Err: err})
		}

		if err != nil {
			return nil, NewResolverError(err)
		}
		return value, nil
	}
}

func makeReferenceResolver(a adapter.Adapter, m *model.Sanitized, many bool) ReferenceFunc {
	if a == nil {
		return func(context.Context, ReferenceParams) (any, error) {
			return nil, nil
		}
	}

	return func(ctx context.Context, p ReferenceParams) (any, error) {
		if m.External {
			if p.ForeignField != model.IDField {
				return nil, NewValidationError(fmt.Sprintf("reversed references cannot be used on external model %s", m.GraphQLName))
			}
			return representations(m, sourceValue(p.Source, p.FieldName), many), nil
		}

		value := sourceValue(p.Source, p.FieldName)
		if value == nil || value == "" {
			return nil, nil
		}

		loaders := LoadersFromContext(ctx)
		if p.FieldName != model.IDField {
			if many {
				return loadMany(ctx, loaders.loader(a, m, single, model.IDField), value), nil
			}
			return load(ctx, loaders.loader(a, m, single, model.IDField), value), nil
		}
		if many {
			return load(ctx, loaders.loader(a, m, multi, p.ForeignField), value), nil
		}
		return load(ctx, loaders.loader(a, m, single, p.ForeignField), value), nil
	}
}

// load returns a thunk for one key. A value that already is an entity is
// returned as it is.
func load(ctx context.Context, l *dataloader.Loader[string, any], value any) any {
	if isEntity(value) {
		return value
	}
	thunk := l.Load(ctx, document.String(value))
	return func() (interface{}, error) {
		data, err := thunk()
		if err != nil {
			return nil, NewResolverError(err)
		}
		return data, nil
	}
}

// loadMany deduplicates the non-empty keys of value and resolves them in one
// batch. Missing entities are dropped from the result.
func loadMany(ctx context.Context, l *dataloader.Loader[string, any], value any) any {
	list, ok := value.([]any)
	if !ok {
		list = []any{value}
	}

	var resolved []any
	var keys []string
	seen := make(map[string]struct{}, len(list))
	for _, elem := range list {
		if isEntity(elem) {
			resolved = append(resolved, elem)
			continue
		}
		key := document.String(elem)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	thunk := l.LoadMany(ctx, keys)
	return func() (interface{}, error) {
		data, errs := thunk()
		for _, err := range errs {
			if err != nil {
				return nil, NewResolverError(err)
			}
		}
		out := make([]any, 0, len(resolved)+len(data))
		out = append(out, resolved...)
		for _, entity := range data {
			if entity != nil {
				out = append(out, entity)
			}
		}
		return out, nil
	}
}

// representations builds the federation stubs of an external model. The
// owning service resolves them from __typename and _id.
func representations(m *model.Sanitized, value any, many bool) any {
	stub := func(elem any) map[string]any {
		id := elem
		if isEntity(elem) {
			id = sourceValue(elem, model.IDField)
		}
		if id == nil || id == "" {
			return nil
		}
		return map[string]any{"__typename": m.GraphQLName, model.IDField: document.String(id)}
	}

	if !many {
		if rep := stub(value); rep != nil {
			return rep
		}
		return nil
	}

	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(list))
	for _, elem := range list {
		if rep := stub(elem); rep != nil {
			out = append(out, rep)
		}
	}
	return out
}

// sourceValue reads field from a parent value.
func sourceValue(source any, field string) any {
	switch s := source.(type) {
	case *document.Document:
		return s.Value(field)
	case map[string]any:
		return s[field]
	}
	return nil
}

func isEntity(value any) bool {
	switch value.(type) {
	case *document.Document, map[string]any:
		return true
	}
	return false
}
