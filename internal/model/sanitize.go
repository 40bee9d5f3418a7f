package model

import (
	"fmt"
	"sort"

	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
)

// SanitizeOptions control how a declaration is compiled.
type SanitizeOptions struct {
	// Strict only exposes CRUD root fields for operations that declare a scope.
	Strict bool
	// Name is the model name used when the declaration does not set one.
	Name           string
	DefaultAdapter string
}

// Template is the canonical return type and arguments of a CRUD operation.
type Template struct {
	Type *property.Property
	Args *property.Fields
}

// ExtendField builds the template of op for the GraphQL type typeName.
func ExtendField(op Operation, typeName string) (Template, bool) {
	entity := func() *property.Property { return property.Raw(typeName) }
	filter := func() *property.Property { return property.Raw(typeName + "FilterInput") }
	sortInput := func() *property.Property { return property.Raw(typeName + "SortInput") }
	createInput := func() *property.Property { return property.Raw(typeName + "CreateInput").Required() }
	updateInput := func() *property.Property { return property.Raw(typeName + "UpdateInput").Required() }

	switch op {
	case OpRead:
		return Template{
			Type: entity(),
			Args: property.NewFields(
				property.F("filter", filter()),
				property.F("skip", property.Number()),
				property.F("sort", sortInput()),
			),
		}, true
	case OpReadMany:
		return Template{
			Type: property.Array(entity()),
			Args: property.NewFields(
				property.F("filter", filter()),
				property.F("skip", property.Number()),
				property.F("limit", property.Number()),
				property.F("sort", sortInput()),
			),
		}, true
	case OpCount:
		return Template{
			Type: property.Number(),
			Args: property.NewFields(property.F("filter", filter())),
		}, true
	case OpCreate:
		return Template{
			Type: entity(),
			Args: property.NewFields(property.F("record", createInput())),
		}, true
	case OpCreateMany:
		return Template{
			Type: property.Array(entity()),
			Args: property.NewFields(property.F("records", property.Array(createInput()).Required())),
		}, true
	case OpUpdate:
		return Template{
			Type: entity(),
			Args: property.NewFields(property.F("record", updateInput())),
		}, true
	case OpUpdateMany:
		return Template{
			Type: property.Array(entity()),
			Args: property.NewFields(property.F("records", property.Array(updateInput()).Required())),
		}, true
	case OpDelete:
		return Template{
			Type: entity(),
			Args: property.NewFields(property.F("_id", property.ID().Required())),
		}, true
	case OpDeleteMany:
		return Template{
			Type: property.Array(entity()),
			Args: property.NewFields(property.F("_ids", property.Array(property.ID().Required()).Required())),
		}, true
	}
	return Template{}, false
}

// Sanitize compiles a model declaration.
func Sanitize(decl Model, opts SanitizeOptions) (*Sanitized, error) {
	name := decl.Name
	if name == "" {
		name = opts.Name
	}
	if name == "" {
		return nil, fmt.Errorf("model has no name")
	}
	typeName := naming.TypeName(name)
	if err := naming.ValidateTypeName(typeName); err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	adapter := decl.Adapter
	if adapter == "" {
		adapter = opts.DefaultAdapter
	}

	for op := range decl.Scopes {
		if !op.Valid() {
			return nil, fmt.Errorf("model %q: scope for unknown operation %q", name, op)
		}
	}
	for op := range decl.Transforms {
		if !op.Valid() {
			return nil, fmt.Errorf("model %q: transform for unknown operation %q", name, op)
		}
	}

	scopes := decl.Scopes
	if scopes == nil {
		scopes = map[Operation]ScopeFunc{}
	}
	transforms := decl.Transforms
	if transforms == nil {
		transforms = map[Operation]TransformFunc{}
	}

	main := mainSchema(decl.Schema, name)
	computed := computedSchema(decl.Computed.Fields, name)

	queries, err := rootSchema(rootSchemaParams{
		fields: decl.Computed.Queries, name: name, root: RootQuery,
		external: decl.External, strict: opts.Strict, scopes: scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("model %q queries: %w", name, err)
	}
	mutations, err := rootSchema(rootSchemaParams{
		fields: decl.Computed.Mutations, name: name, root: RootMutation,
		external: decl.External, strict: opts.Strict, scopes: scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("model %q mutations: %w", name, err)
	}

	custom := decl.Computed.Custom
	if custom == nil {
		custom = map[string]map[string]ResolveFunc{}
	}

	return &Sanitized{
		Name:        name,
		GraphQLName: typeName,
		Adapter:     adapter,
		Schemas: Schemas{
			Main:      main,
			Computed:  computed,
			Queries:   queries,
			Mutations: mutations,
		},
		Resolvers: Resolvers{
			Queries:   queryResolvers(decl.Computed.Queries),
			Mutations: queryResolvers(decl.Computed.Mutations),
			Computed:  fieldResolvers(decl.Computed.Fields),
			Custom:    custom,
		},
		Scopes:     scopes,
		Transforms: transforms,
		External:   decl.External,
	}, nil
}

func cloneFields(fields *property.Fields) *property.Fields {
	out := property.NewFields()
	for _, name := range fields.Names() {
		out.Set(name, fields.Get(name).Clone())
	}
	return out
}

// mainSchema clones the declared fields. Fields without a mode are exposed
// for both input and output, except reversed references which store nothing.
func mainSchema(fields *property.Fields, name string) *property.Property {
	schema := property.SchemaOf(cloneFields(fields))
	schema.Name = name
	for _, field := range schema.Fields.Names() {
		p := schema.Fields.Get(field)
		if p.Mode != 0 {
			continue
		}
		if p.Deep().Kind == property.KindReversedReference {
			p.Mode = property.ModeOutput
		} else {
			p.Mode = property.ModeBoth
		}
	}
	return schema
}

// computedSchema builds the computed view. Computed fields default to
// output-only.
func computedSchema(fields map[string]ComputedField, name string) *property.Property {
	schema := property.SchemaOf(property.NewFields())
	schema.Name = name
	for _, field := range sortedKeys(fields) {
		decl := fields[field]
		var p *property.Property
		if decl.Type != nil {
			p = decl.Type.Clone()
		} else {
			p = property.JSON()
		}
		schema.Fields.Set(field, p)
		if decl.Args != nil {
			args := property.SchemaOf(cloneFields(decl.Args))
			args.Name = "args"
			p.WithArgs(args)
		}
		if decl.Mode != 0 {
			p.WithMode(decl.Mode)
		}
		if p.Mode == 0 {
			p.Mode = property.ModeOutput
		}
	}
	return schema
}

type rootSchemaParams struct {
	fields   map[string]ComputedQuery
	name     string
	root     Root
	external bool
	strict   bool
	scopes   map[Operation]ScopeFunc
}

// rootSchema builds the Query or Mutation view: CRUD templates first, then
// declared fields, which override templates of the same name.
func rootSchema(params rootSchemaParams) (*property.Property, error) {
	typeName := naming.TypeName(params.name)
	fieldPrefix := naming.FieldName(params.name)

	schema := property.SchemaOf(property.NewFields())
	schema.Name = string(params.root)

	for _, def := range OperationsFor(params.root) {
		if params.external || (params.strict && params.scopes[def.Op] == nil) {
			continue
		}
		tmpl, _ := ExtendField(def.Op, typeName)
		p := tmpl.Type
		schema.Fields.Set(fieldPrefix+def.Suffix, p)
		p.WithArgs(argsSchema(tmpl.Args))
	}

	for _, field := range sortedKeys(params.fields) {
		decl := params.fields[field]
		var tmpl Template
		if decl.Extends != "" {
			var ok bool
			tmpl, ok = ExtendField(decl.Extends, typeName)
			if !ok {
				return nil, fmt.Errorf("field %q extends unknown operation %q", field, decl.Extends)
			}
		}

		var p *property.Property
		switch {
		case decl.Type != nil:
			p = decl.Type.Clone()
		case tmpl.Type != nil:
			p = tmpl.Type
		default:
			p = property.Schema()
		}
		schema.Fields.Set(field, p)

		switch {
		case decl.Args != nil:
			p.WithArgs(argsSchema(cloneFields(decl.Args)))
		case tmpl.Args != nil:
			p.WithArgs(argsSchema(tmpl.Args))
		}
		p.WithMode(property.ModeOutput)
	}

	for _, field := range schema.Fields.Names() {
		p := schema.Fields.Get(field)
		if p.Mode == 0 {
			p.Mode = property.ModeBoth
		}
	}
	return schema, nil
}

func argsSchema(fields *property.Fields) *property.Property {
	args := property.SchemaOf(fields)
	args.Name = "args"
	return args
}

func queryResolvers(fields map[string]ComputedQuery) map[string]ResolveFunc {
	out := make(map[string]ResolveFunc)
	for name, decl := range fields {
		if decl.Resolve == nil {
			continue
		}
		out[name] = Chain(decl.Resolve, decl.Scopes, decl.Transforms)
	}
	return out
}

func fieldResolvers(fields map[string]ComputedField) map[string]ResolveFunc {
	out := make(map[string]ResolveFunc)
	for name, decl := range fields {
		if decl.Resolve == nil {
			continue
		}
		out[name] = Chain(decl.Resolve, decl.Scopes, decl.Transforms)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
