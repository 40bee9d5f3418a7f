package modelfile

import (
	"context"
	"fmt"
	"sort"

	"harmony-graphql/internal/model"
	"harmony-graphql/internal/naming"
)

// Hooks attaches code to the declarations of a model file.
type Hooks struct {
	// Resolvers are keyed by "<Type>.<field>", for example "List.itemCount",
	// "Query.listByTitle" or "Mutation.listArchive".
	Resolvers map[string]model.ResolveFunc
	// Scopes and Transforms are keyed by model name.
	Scopes     map[string]map[model.Operation]model.ScopeFunc
	Transforms map[string]map[model.Operation]model.TransformFunc
}

// Declarations turns the file into model declarations. A custom root field
// without a resolver must extend a CRUD operation and runs that operation.
// Hooks that match nothing in the file are errors.
func (f *File) Declarations(hooks Hooks) ([]model.Model, error) {
	used := make(map[string]bool)
	out := make([]model.Model, 0, len(f.Models))

	for _, m := range f.Models {
		typeName := naming.TypeName(m.Name)
		decl := model.Model{
			Name:       m.Name,
			Adapter:    m.Adapter,
			External:   m.External,
			Schema:     m.Schema.Fields,
			Scopes:     hooks.Scopes[m.Name],
			Transforms: hooks.Transforms[m.Name],
		}
		if _, ok := hooks.Scopes[m.Name]; ok {
			used["scopes:"+m.Name] = true
		}
		if _, ok := hooks.Transforms[m.Name]; ok {
			used["transforms:"+m.Name] = true
		}

		if len(m.Computed.Fields) > 0 {
			decl.Computed.Fields = make(map[string]model.ComputedField, len(m.Computed.Fields))
		}
		for name, field := range m.Computed.Fields {
			if field.Extends != "" {
				return nil, fmt.Errorf("model %q: computed field %q cannot extend an operation", m.Name, name)
			}
			key := typeName + "." + name
			used["resolver:"+key] = hooks.Resolvers[key] != nil
			decl.Computed.Fields[name] = model.ComputedField{
				Type:    field.Property,
				Args:    field.Args,
				Mode:    field.Property.Mode,
				Resolve: hooks.Resolvers[key],
			}
		}

		var err error
		decl.Computed.Queries, err = rootFields(m.Name, typeName, string(model.RootQuery), m.Computed.Queries, hooks, used)
		if err != nil {
			return nil, err
		}
		decl.Computed.Mutations, err = rootFields(m.Name, typeName, string(model.RootMutation), m.Computed.Mutations, hooks, used)
		if err != nil {
			return nil, err
		}
		out = append(out, decl)
	}

	if err := checkUnused(hooks, used); err != nil {
		return nil, err
	}
	return out, nil
}

func rootFields(modelName, typeName, root string, fields map[string]Field, hooks Hooks, used map[string]bool) (map[string]model.ComputedQuery, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make(map[string]model.ComputedQuery, len(fields))
	for name, field := range fields {
		key := root + "." + name
		resolve := hooks.Resolvers[key]
		used["resolver:"+key] = resolve != nil
		if resolve == nil {
			if field.Extends == "" {
				return nil, fmt.Errorf("model %q: %s field %q has no resolver and extends no operation", modelName, root, name)
			}
			resolve = runOperation(typeName, field.Extends)
		}
		out[name] = model.ComputedQuery{
			Type:    field.Property,
			Args:    field.Args,
			Extends: field.Extends,
			Resolve: resolve,
		}
	}
	return out, nil
}

// runOperation resolves a custom root field with the scoped CRUD operation
// it extends.
func runOperation(typeName string, op model.Operation) model.ResolveFunc {
	return func(ctx context.Context, p model.Params) (any, error) {
		accessor, ok := p.Resolvers[typeName]
		if !ok {
			return nil, fmt.Errorf("no resolvers for model %s", typeName)
		}
		return accessor.Call(ctx, model.Alias(op), p.Args)
	}
}

func checkUnused(hooks Hooks, used map[string]bool) error {
	var unused []string
	for key := range hooks.Resolvers {
		if !used["resolver:"+key] {
			unused = append(unused, "resolver "+key)
		}
	}
	for name := range hooks.Scopes {
		if !used["scopes:"+name] {
			unused = append(unused, "scopes of "+name)
		}
	}
	for name := range hooks.Transforms {
		if !used["transforms:"+name] {
			unused = append(unused, "transforms of "+name)
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return fmt.Errorf("hooks match no declaration: %v", unused)
}
