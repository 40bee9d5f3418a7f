package executable

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"harmony-graphql/internal/document"
	"harmony-graphql/internal/resolver"
	"harmony-graphql/internal/scalars"
)

// builder converts merged definitions into graphql-go types. Object and
// input fields are thunked so types may reference each other in any order.
type builder struct {
	defs      map[string]*ast.Definition
	order     []string
	sdl       string
	resolvers *resolver.Map

	scalars map[string]*graphql.Scalar
	enums   map[string]*graphql.Enum
	objects map[string]*graphql.Object
	inputs  map[string]*graphql.InputObject

	keyed  []string
	entity *graphql.Union
}

// validate checks every type reference up front. Thunks run inside
// graphql.NewSchema where errors cannot be reported.
func (b *builder) validate() error {
	for _, name := range b.order {
		def := b.defs[name]
		switch def.Kind {
		case ast.Scalar, ast.Enum:
		case ast.Object:
			for _, field := range def.Fields {
				if err := b.checkRef(field.Type, true); err != nil {
					return fmt.Errorf("%s.%s: %w", name, field.Name, err)
				}
				for _, arg := range field.Arguments {
					if err := b.checkRef(arg.Type, false); err != nil {
						return fmt.Errorf("%s.%s(%s): %w", name, field.Name, arg.Name, err)
					}
				}
			}
		case ast.InputObject:
			for _, field := range def.Fields {
				if err := b.checkRef(field.Type, false); err != nil {
					return fmt.Errorf("%s.%s: %w", name, field.Name, err)
				}
			}
		default:
			return fmt.Errorf("type %s: %s definitions are not supported", name, def.Kind)
		}
	}
	for _, root := range []string{queryType, mutationType} {
		if def, ok := b.defs[root]; ok && def.Kind != ast.Object {
			return fmt.Errorf("root type %s must be an object type", root)
		}
	}
	return nil
}

func (b *builder) checkRef(t *ast.Type, output bool) error {
	name := t.Name()
	if _, ok := builtinScalars[name]; ok {
		return nil
	}
	def, ok := b.defs[name]
	if !ok {
		return fmt.Errorf("unknown type %s", name)
	}
	switch def.Kind {
	case ast.Scalar, ast.Enum:
		return nil
	case ast.Object:
		if output {
			return nil
		}
	case ast.InputObject:
		if !output {
			return nil
		}
	}
	if output {
		return fmt.Errorf("%s is not an output type", name)
	}
	return fmt.Errorf("%s is not an input type", name)
}

// build declares every type and returns the schema config.
func (b *builder) build() graphql.SchemaConfig {
	for _, name := range b.order {
		def := b.defs[name]
		switch def.Kind {
		case ast.Scalar:
			if scalar, ok := b.resolvers.Scalars[name]; ok {
				b.scalars[name] = scalar
			} else {
				b.scalars[name] = scalars.Passthrough(name)
			}
		case ast.Enum:
			values := graphql.EnumValueConfigMap{}
			for _, v := range def.EnumValues {
				values[v.Name] = &graphql.EnumValueConfig{Value: v.Name, Description: v.Description}
			}
			b.enums[name] = graphql.NewEnum(graphql.EnumConfig{
				Name:        name,
				Description: def.Description,
				Values:      values,
			})
		case ast.Object:
			if def.Directives.ForName(keyDirective) != nil {
				b.keyed = append(b.keyed, name)
			}
			if name == queryType {
				continue
			}
			b.objects[name] = graphql.NewObject(graphql.ObjectConfig{
				Name:        name,
				Description: def.Description,
				Fields:      b.fieldsThunk(def, nil),
			})
		case ast.InputObject:
			b.inputs[name] = graphql.NewInputObject(graphql.InputObjectConfig{
				Name:        name,
				Description: def.Description,
				Fields:      b.inputFieldsThunk(def),
			})
		}
	}

	b.scalars[anyScalar] = scalars.Passthrough(anyScalar)
	if len(b.keyed) > 0 {
		types := make([]*graphql.Object, 0, len(b.keyed))
		for _, name := range b.keyed {
			types = append(types, b.objects[name])
		}
		b.entity = graphql.NewUnion(graphql.UnionConfig{
			Name:        entityUnion,
			Types:       types,
			ResolveType: b.resolveEntityType,
		})
	}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name:   queryType,
		Fields: b.fieldsThunk(b.defs[queryType], b.federationFields),
	})
	b.objects[queryType] = query

	config := graphql.SchemaConfig{Query: query}
	if def, ok := b.defs[mutationType]; ok && len(def.Fields) > 0 {
		config.Mutation = b.objects[mutationType]
	} else {
		delete(b.objects, mutationType)
	}

	for _, name := range b.order {
		switch {
		case b.objects[name] != nil && name != queryType && name != mutationType:
			config.Types = append(config.Types, b.objects[name])
		case b.inputs[name] != nil:
			config.Types = append(config.Types, b.inputs[name])
		}
	}
	return config
}

func (b *builder) fieldsThunk(def *ast.Definition, extra func() graphql.Fields) graphql.FieldsThunk {
	return graphql.FieldsThunk(func() graphql.Fields {
		fields := graphql.Fields{}
		if def != nil {
			for _, f := range def.Fields {
				fields[f.Name] = b.field(def.Name, f)
			}
		}
		if extra != nil {
			for name, f := range extra() {
				fields[name] = f
			}
		}
		return fields
	})
}

func (b *builder) inputFieldsThunk(def *ast.Definition) graphql.InputObjectConfigFieldMapThunk {
	return graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
		fields := graphql.InputObjectConfigFieldMap{}
		for _, f := range def.Fields {
			fields[f.Name] = &graphql.InputObjectFieldConfig{
				Type:         b.input(f.Type),
				DefaultValue: defaultValue(f.DefaultValue),
				Description:  f.Description,
			}
		}
		return fields
	})
}

func (b *builder) field(typeName string, f *ast.FieldDefinition) *graphql.Field {
	field := &graphql.Field{
		Name:        f.Name,
		Type:        b.output(f.Type),
		Description: f.Description,
		Resolve:     resolveProperty,
	}
	if fn, ok := b.resolvers.Resolver(typeName, f.Name); ok {
		field.Resolve = fn
	}
	if len(f.Arguments) > 0 {
		field.Args = graphql.FieldConfigArgument{}
		for _, arg := range f.Arguments {
			field.Args[arg.Name] = &graphql.ArgumentConfig{
				Type:         b.input(arg.Type),
				DefaultValue: defaultValue(arg.DefaultValue),
				Description:  arg.Description,
			}
		}
	}
	return field
}

func (b *builder) output(t *ast.Type) graphql.Output {
	var out graphql.Output
	if t.Elem != nil {
		out = graphql.NewList(b.output(t.Elem))
	} else {
		out = b.namedOutput(t.NamedType)
	}
	if t.NonNull {
		out = graphql.NewNonNull(out)
	}
	return out
}

func (b *builder) namedOutput(name string) graphql.Output {
	if scalar, ok := builtinScalars[name]; ok {
		return scalar
	}
	if scalar, ok := b.scalars[name]; ok {
		return scalar
	}
	if enum, ok := b.enums[name]; ok {
		return enum
	}
	return b.objects[name]
}

func (b *builder) input(t *ast.Type) graphql.Input {
	var in graphql.Input
	if t.Elem != nil {
		in = graphql.NewList(b.input(t.Elem))
	} else {
		in = b.namedInput(t.NamedType)
	}
	if t.NonNull {
		in = graphql.NewNonNull(in)
	}
	return in
}

func (b *builder) namedInput(name string) graphql.Input {
	if scalar, ok := builtinScalars[name]; ok {
		return scalar
	}
	if scalar, ok := b.scalars[name]; ok {
		return scalar
	}
	if enum, ok := b.enums[name]; ok {
		return enum
	}
	return b.inputs[name]
}

func defaultValue(v *ast.Value) interface{} {
	if v == nil {
		return nil
	}
	value, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return value
}

// resolveProperty reads the field from a document parent and defers to the
// graphql-go default for maps and structs.
func resolveProperty(p graphql.ResolveParams) (interface{}, error) {
	if doc, ok := p.Source.(*document.Document); ok {
		return doc.Value(p.Info.FieldName), nil
	}
	return graphql.DefaultResolveFn(p)
}
