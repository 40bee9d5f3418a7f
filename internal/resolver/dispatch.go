package resolver

import (
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/model"
	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
	"harmony-graphql/internal/scalars"
)

// ResolveReferenceField is the pseudo-field holding a type's federation
// entity resolver.
const ResolveReferenceField = "__resolveReference"

// Map is the resolver map an executable schema is built from.
type Map struct {
	Scalars map[string]*graphql.Scalar
	Fields  map[string]map[string]graphql.FieldResolveFn
}

// NewMap returns an empty map with Query and Mutation present.
func NewMap() *Map {
	return &Map{
		Scalars: make(map[string]*graphql.Scalar),
		Fields: map[string]map[string]graphql.FieldResolveFn{
			string(model.RootQuery):    {},
			string(model.RootMutation): {},
		},
	}
}

// Set registers fn for typeName.field, replacing any earlier resolver.
func (m *Map) Set(typeName, field string, fn graphql.FieldResolveFn) {
	fields, ok := m.Fields[typeName]
	if !ok {
		fields = make(map[string]graphql.FieldResolveFn)
		m.Fields[typeName] = fields
	}
	fields[field] = fn
}

// Resolver returns the resolver of typeName.field.
func (m *Map) Resolver(typeName, field string) (graphql.FieldResolveFn, bool) {
	fn, ok := m.Fields[typeName][field]
	return fn, ok
}

// Types returns the names of every type with at least one resolver, sorted.
func (m *Map) Types() []string {
	out := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetResolversParams are the inputs of GetResolvers.
type GetResolversParams struct {
	// Bundles are keyed by GraphQL type name.
	Bundles map[string]*Bundle
	// Scalars are the custom scalars declared next to the models.
	Scalars map[string]*graphql.Scalar
	Models  []*model.Sanitized
}

// GetResolvers merges the bundles and declared resolvers of every model into
// one map. Later registrations replace earlier ones, so computed fields
// shadow derived reference resolvers of the same name.
func GetResolvers(params GetResolversParams) (*Map, error) {
	out := NewMap()

	for _, name := range sortedNames(params.Scalars) {
		out.Scalars[name] = params.Scalars[name]
	}

	for _, m := range params.Models {
		b, ok := params.Bundles[m.GraphQLName]
		if !ok || m.External {
			continue
		}
		for _, def := range model.Operations {
			out.Set(string(def.Root), m.RootField(def.Op), crudField(b.Ops[model.Alias(def.Op)].Scoped))
		}
	}

	for _, m := range params.Models {
		for _, schema := range []*property.Property{m.Schemas.Main, m.Schemas.Computed} {
			if err := extractReferences(out, params.Bundles, schema); err != nil {
				return nil, err
			}
		}

		for _, field := range sortedNames(m.Resolvers.Computed) {
			out.Set(m.GraphQLName, field, computedField(field, m.Resolvers.Computed[field], params.Bundles))
		}
		for _, field := range sortedNames(m.Resolvers.Queries) {
			out.Set(string(model.RootQuery), field, computedField(field, m.Resolvers.Queries[field], params.Bundles))
		}
		for _, field := range sortedNames(m.Resolvers.Mutations) {
			out.Set(string(model.RootMutation), field, computedField(field, m.Resolvers.Mutations[field], params.Bundles))
		}
		for _, typeName := range sortedNames(m.Resolvers.Custom) {
			custom := m.Resolvers.Custom[typeName]
			for _, field := range sortedNames(custom) {
				out.Set(typeName, field, computedField(field, custom[field], params.Bundles))
			}
		}

		if b, ok := params.Bundles[m.GraphQLName]; ok && !m.External {
			out.Set(m.GraphQLName, ResolveReferenceField, entityReference(b))
		}
	}

	for name, scalar := range scalars.Builtins() {
		out.Scalars[name] = scalar
	}
	return out, nil
}

func crudField(call CrudFunc) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return call(p.Context, model.Params{
			Source: p.Source,
			Args:   p.Args,
			Info:   p.Info,
		})
	}
}

// computedField wraps a declared resolver so it can reach every model
// through accessors bound to the current field.
func computedField(field string, resolve model.ResolveFunc, bundles map[string]*Bundle) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		value, err := resolve(p.Context, model.Params{
			Source:    p.Source,
			Args:      p.Args,
			Info:      p.Info,
			Field:     field,
			Resolvers: NewAccessors(bundles, p.Source, p.Info),
		})
		if err != nil {
			return nil, NewResolverError(err)
		}
		return value, nil
	}
}

func entityReference(b *Bundle) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return b.Reference(p.Context, ReferenceParams{
			Source:       p.Source,
			FieldName:    model.IDField,
			ForeignField: model.IDField,
			Info:         p.Info,
		})
	}
}

func extractReferences(out *Map, bundles map[string]*Bundle, schema *property.Property) error {
	if schema == nil || schema.Fields == nil {
		return nil
	}
	for _, name := range schema.Fields.Names() {
		if err := extractReference(out, bundles, schema.Fields.Get(name)); err != nil {
			return err
		}
	}
	return nil
}

func extractReference(out *Map, bundles map[string]*Bundle, p *property.Property) error {
	switch p.Kind {
	case property.KindSchema:
		return extractReferences(out, bundles, p)
	case property.KindArray:
		if deep := p.Deep(); deep != p {
			return extractReference(out, bundles, deep)
		}
		return nil
	case property.KindReference, property.KindReversedReference:
	default:
		return nil
	}

	owner, fieldName, many := referenceSite(p)
	if owner == nil {
		return nil
	}
	typeName := owner.GraphQLName()
	target, ok := bundles[naming.TypeName(p.Of)]
	if !ok {
		if p.Kind == property.KindReversedReference {
			return NewValidationError(fmt.Sprintf("no model found for name %s", naming.TypeName(p.Of)))
		}
		return nil
	}

	resolve := target.Reference
	if many {
		resolve = target.References
	}
	params := ReferenceParams{FieldName: fieldName, ForeignField: model.IDField}
	if p.Kind == property.KindReversedReference {
		params = ReferenceParams{FieldName: model.IDField, ForeignField: p.On}
	}

	out.Set(typeName, fieldName, func(rp graphql.ResolveParams) (interface{}, error) {
		call := params
		call.Source = rp.Source
		call.Info = rp.Info
		return resolve(rp.Context, call)
	})
	return nil
}

// referenceSite climbs out of enclosing arrays and returns the schema that
// owns the field, the field name, and whether the field is a list.
func referenceSite(p *property.Property) (*property.Property, string, bool) {
	node := p
	many := false
	for node.Parent != nil && node.Parent.Kind == property.KindArray {
		node = node.Parent
		many = true
	}
	return node.Parent, node.Name, many
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
