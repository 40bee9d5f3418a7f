// Package sdl prints the GraphQL schema of a set of sanitized models: the
// filter, sort, create and update inputs, the federated output type, the
// root field extensions and the shared operator types.
package sdl

import (
	"fmt"
	"sort"
	"strings"

	"harmony-graphql/internal/model"
	"harmony-graphql/internal/operators"
	"harmony-graphql/internal/property"
)

// BuiltinScalars are declared by every generated schema.
var BuiltinScalars = []string{"Date", "JSON", "Number"}

// Compiler prints SDL for one build. Operator types synthesized while
// printing models are collected in its registry and printed once by
// DefineSchema.
type Compiler struct {
	operators *operators.Registry
}

// NewCompiler creates a compiler. The prefix is inserted into the names of
// generated nested operator types so federated services do not collide.
func NewCompiler(prefix string) *Compiler {
	return &Compiler{operators: operators.NewRegistry(prefix)}
}

// Operators returns the operator registry of this build.
func (c *Compiler) Operators() *operators.Registry {
	return c.operators
}

// views are the per-model schemas derived from the main and computed
// schemas.
type views struct {
	output *property.Fields
	filter *property.Fields
	sort   *property.Fields
	create *property.Fields
	update *property.Fields
}

func extract(v *views, schema *property.Property) {
	for _, name := range schema.Fields.Names() {
		field := schema.Fields.Get(name)
		if field.Mode.Has(property.ModeOutput) {
			v.output.Set(name, field.Clone())
		}
		if !field.Mode.Has(property.ModeInput) {
			continue
		}
		v.filter.Set(name, field.Clone().Optional())
		v.sort.Set(name, sortField(field))
		v.create.Set(name, field.Clone())
		v.update.Set(name, field.Clone().Optional())
	}
}

// sortField maps a field to its sort direction. Nested schemas recurse so
// entities can be sorted by nested paths.
func sortField(field *property.Property) *property.Property {
	if field.Kind != property.KindSchema {
		return property.Number()
	}
	nested := property.NewFields()
	for _, name := range field.Fields.Names() {
		nested.Set(name, sortField(field.Fields.Get(name)))
	}
	return property.SchemaOf(nested)
}

// idField returns the existing _id of fields or a fresh ID bound to adapter.
func idField(fields *property.Fields, adapter string) *property.Property {
	id := fields.Get(model.IDField)
	if id == nil {
		id = property.ID()
	}
	return id.For(adapter)
}

// PrintModel prints every definition of one model.
func (c *Compiler) PrintModel(m *model.Sanitized) (string, error) {
	v := &views{
		output: property.NewFields(),
		filter: property.NewFields(),
		sort:   property.NewFields(),
		create: property.NewFields(),
		update: property.NewFields(),
	}
	extract(v, m.Schemas.Main)
	extract(v, m.Schemas.Computed)

	v.filter.Set(model.IDField, idField(v.filter, m.Adapter))
	v.sort.Set(model.IDField, property.Number())
	v.create.Set(model.IDField, idField(v.create, m.Adapter))
	v.update.Set(model.IDField, idField(v.update, m.Adapter).Required())
	outputID := idField(v.output, m.Adapter).Required()
	if m.External {
		outputID.External()
	}
	v.output.Set(model.IDField, outputID)

	typeName := m.GraphQLName
	p := &printer{}

	if !m.External {
		filterSchema := property.SchemaOf(v.filter)
		ops, err := c.operators.CreateOperatorType(filterSchema)
		if err != nil {
			return "", fmt.Errorf("model %q filter operators: %w", m.Name, err)
		}
		for _, logical := range []string{"_and", "_or", "_nor"} {
			v.filter.Set(logical, property.Array(property.Raw(typeName+"FilterInput")))
		}
		v.filter.Set("_operators", ops)

		inputs := []struct {
			base   string
			fields *property.Fields
		}{
			{typeName + "Filter", v.filter},
			{typeName + "Sort", v.sort},
			{typeName + "Create", v.create},
			{typeName + "Update", v.update},
		}
		for _, in := range inputs {
			if _, err := p.print(definition{
				keyword: keywordInput,
				base:    in.base,
				suffix:  "Input",
				schema:  property.SchemaOf(in.fields),
				input:   true,
			}); err != nil {
				return "", fmt.Errorf("model %q: %w", m.Name, err)
			}
		}
	}

	output := definition{
		keyword:    keywordType,
		base:       typeName,
		directives: `@key(fields: "_id")`,
		schema:     property.SchemaOf(v.output),
	}
	if m.External {
		output.keyword = keywordExtend
	}
	if _, err := p.print(output); err != nil {
		return "", fmt.Errorf("model %q: %w", m.Name, err)
	}

	for _, root := range []struct {
		name   model.Root
		schema *property.Property
	}{
		{model.RootQuery, m.Schemas.Queries},
		{model.RootMutation, m.Schemas.Mutations},
	} {
		if _, err := p.print(definition{
			keyword: keywordExtend,
			base:    string(root.name),
			schema:  root.schema,
		}); err != nil {
			return "", fmt.Errorf("model %q: %w", m.Name, err)
		}
	}

	return p.String(), nil
}

// DefineSchema prints the full schema document: builtin and custom scalars,
// every model, then every operator type synthesized along the way.
func (c *Compiler) DefineSchema(models []*model.Sanitized, scalars []string) (string, error) {
	var b strings.Builder

	b.WriteString("# Harmony Scalars\n")
	for _, s := range BuiltinScalars {
		b.WriteString("scalar " + s + "\n")
	}

	custom := append([]string(nil), scalars...)
	sort.Strings(custom)
	if len(custom) > 0 {
		b.WriteString("\n# Custom Scalars\n")
		for _, s := range custom {
			b.WriteString("scalar " + s + "\n")
		}
	}

	b.WriteString("\n# Types\n")
	for _, m := range models {
		printed, err := c.PrintModel(m)
		if err != nil {
			return "", err
		}
		b.WriteString(printed)
		b.WriteString("\n")
	}

	b.WriteString("# Operator Types\n")
	p := &printer{}
	for _, t := range c.operators.Types() {
		if _, err := p.print(definition{
			keyword: keywordInput,
			base:    t.Name,
			suffix:  "Input",
			schema:  t.Schema,
			input:   true,
		}); err != nil {
			return "", fmt.Errorf("operator type %s: %w", t.Name, err)
		}
	}
	b.WriteString(p.String())

	return b.String(), nil
}
