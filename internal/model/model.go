// Package model turns declarative model definitions into sanitized models:
// the main, computed, query and mutation schema views plus the resolver,
// scope and transform hooks that go with them.
package model

import (
	"context"

	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
)

// IDField is the identifier field every entity carries.
const IDField = "_id"

// Params is passed to resolvers and scopes.
type Params struct {
	Source any
	Args   map[string]any
	Info   graphql.ResolveInfo
	// Field is the GraphQL field being resolved.
	Field string
	// Resolvers gives access to the CRUD operations of every model.
	Resolvers Accessors
}

// ResolveFunc resolves a computed field, custom query or custom mutation.
type ResolveFunc func(ctx context.Context, p Params) (any, error)

// ScopeFunc runs before an operation. A non-nil result replaces the args;
// an error rejects the operation.
type ScopeFunc func(ctx context.Context, p Params) (map[string]any, error)

// TransformParams carries the outcome of an operation to a transform.
type TransformParams struct {
	Params
	Value any
	Err   error
}

// TransformFunc runs after an operation, even when it failed. Its results
// replace the value and error of the operation.
type TransformFunc func(ctx context.Context, p TransformParams) (any, error)

// Accessor exposes the operations of one model to server-side code.
type Accessor interface {
	// Call runs an operation with the model's scope and transform.
	Call(ctx context.Context, alias Alias, args map[string]any) (any, error)
	// Unscoped runs an operation against the adapter only.
	Unscoped(ctx context.Context, alias Alias, args map[string]any) (any, error)
	// Reference loads one entity by _id through the request loaders.
	Reference(ctx context.Context, id string) (any, error)
}

// Accessors maps GraphQL type names to model accessors.
type Accessors map[string]Accessor

// ComputedField declares a field resolved at query time.
type ComputedField struct {
	Type       *property.Property
	Args       *property.Fields
	Mode       property.Mode
	Resolve    ResolveFunc
	Scopes     []ScopeFunc
	Transforms []TransformFunc
}

// ComputedQuery declares a custom root query or mutation. When Extends is
// set, the type and args default to those of the CRUD operation.
type ComputedQuery struct {
	Type       *property.Property
	Args       *property.Fields
	Extends    Operation
	Resolve    ResolveFunc
	Scopes     []ScopeFunc
	Transforms []TransformFunc
}

// Computed groups the computed declarations of a model.
type Computed struct {
	Fields    map[string]ComputedField
	Queries   map[string]ComputedQuery
	Mutations map[string]ComputedQuery
	// Custom maps a GraphQL type name to field resolvers.
	Custom map[string]map[string]ResolveFunc
}

// Model is a raw model declaration.
type Model struct {
	Name       string
	Adapter    string
	Schema     *property.Fields
	Computed   Computed
	Scopes     map[Operation]ScopeFunc
	Transforms map[Operation]TransformFunc
	// External marks a model owned by another federated service.
	External bool
}

// Schemas are the four views of a sanitized model.
type Schemas struct {
	Main      *property.Property
	Computed  *property.Property
	Queries   *property.Property
	Mutations *property.Property
}

// Resolvers are the declared resolvers of a sanitized model, already wrapped
// with their scope and transform chains.
type Resolvers struct {
	Queries   map[string]ResolveFunc
	Mutations map[string]ResolveFunc
	Computed  map[string]ResolveFunc
	Custom    map[string]map[string]ResolveFunc
}

// Sanitized is a compiled model. It is immutable once the build completes.
type Sanitized struct {
	Name        string
	GraphQLName string
	Adapter     string
	Schemas     Schemas
	Resolvers   Resolvers
	Scopes      map[Operation]ScopeFunc
	Transforms  map[Operation]TransformFunc
	External    bool
}

// FieldName returns the camelCase prefix of the model's root fields.
func (m *Sanitized) FieldName() string {
	return naming.FieldName(m.Name)
}

// RootField returns the root field name of a CRUD operation.
func (m *Sanitized) RootField(op Operation) string {
	def, _ := op.Def()
	return m.FieldName() + def.Suffix
}
