package sdl

import (
	"fmt"
	"strings"

	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
)

const (
	keywordType   = "type"
	keywordInput  = "input"
	keywordExtend = "extend type"
)

// ScalarName maps a scalar kind to its GraphQL type.
var ScalarName = map[property.Kind]string{
	property.KindID:      "ID",
	property.KindString:  "String",
	property.KindNumber:  "Number",
	property.KindFloat:   "Float",
	property.KindBoolean: "Boolean",
	property.KindDate:    "Date",
	property.KindJSON:    "JSON",
}

// definition is one printable type. Nested schemas are printed as their
// own definitions named after the path that leads to them.
type definition struct {
	keyword    string
	base       string
	suffix     string
	directives string
	schema     *property.Property
	input      bool
}

func (d definition) name() string {
	return d.base + d.suffix
}

// printer accumulates definitions in the order they are encountered.
type printer struct {
	b strings.Builder
}

func (p *printer) String() string {
	return p.b.String()
}

// print writes def and then every nested definition it references.
// It reports false when def has no printable field.
func (p *printer) print(def definition) (bool, error) {
	mode := property.ModeOutput
	if def.input {
		mode = property.ModeInput
	}

	var nested []definition
	var lines []string
	for _, name := range def.schema.Fields.Names() {
		field := def.schema.Fields.Get(name)
		if !field.Mode.Has(mode) {
			continue
		}
		expr, err := p.typeExpr(def, name, field, &nested)
		if err != nil {
			return false, fmt.Errorf("%s.%s: %w", def.name(), name, err)
		}

		var line strings.Builder
		line.WriteString("  ")
		line.WriteString(name)
		if !def.input && field.Args != nil && field.Args.Fields.Len() > 0 {
			args, err := p.args(def, name, field.Args, &nested)
			if err != nil {
				return false, fmt.Errorf("%s.%s args: %w", def.name(), name, err)
			}
			line.WriteString("(" + args + ")")
		}
		line.WriteString(": ")
		line.WriteString(expr)
		if field.IsExternal && !def.input {
			line.WriteString(" @external")
		}
		lines = append(lines, line.String())
	}
	if len(lines) == 0 {
		return false, nil
	}

	if p.b.Len() > 0 {
		p.b.WriteString("\n")
	}
	p.b.WriteString(def.keyword + " " + def.name())
	if def.directives != "" {
		p.b.WriteString(" " + def.directives)
	}
	p.b.WriteString(" {\n")
	for _, line := range lines {
		p.b.WriteString(line + "\n")
	}
	p.b.WriteString("}\n")

	for _, n := range nested {
		if _, err := p.print(n); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (p *printer) args(owner definition, field string, args *property.Property, nested *[]definition) (string, error) {
	def := definition{
		keyword: keywordInput,
		base:    owner.base + naming.TypeName(field) + "Args",
		suffix:  "Input",
		schema:  args,
		input:   true,
	}
	var parts []string
	for _, name := range args.Fields.Names() {
		arg := args.Fields.Get(name)
		if !arg.Mode.Has(property.ModeInput) {
			continue
		}
		expr, err := p.typeExpr(def, name, arg, nested)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		parts = append(parts, name+": "+expr)
	}
	return strings.Join(parts, ", "), nil
}

// typeExpr renders the GraphQL type of field inside def, queueing nested
// schema definitions.
func (p *printer) typeExpr(def definition, name string, field *property.Property, nested *[]definition) (string, error) {
	var expr string
	switch field.Kind {
	case property.KindArray:
		elem, err := p.typeExpr(def, name, field.Elem, nested)
		if err != nil {
			return "", err
		}
		expr = "[" + elem + "]"

	case property.KindSchema:
		child := definition{
			keyword: keywordType,
			base:    def.base + naming.TypeName(name),
			schema:  field,
			input:   def.input,
		}
		if def.input {
			child.keyword = keywordInput
			child.suffix = "Input"
		}
		if !hasPrintable(field, def.input) {
			expr = ScalarName[property.KindJSON]
			break
		}
		*nested = append(*nested, child)
		expr = child.name()

	case property.KindReference, property.KindReversedReference:
		if field.IsFor == "" {
			return "", fmt.Errorf("%s to %q has no adapter binding", field.Kind, field.Of)
		}
		if def.input {
			expr = ScalarName[property.KindID]
		} else {
			expr = naming.TypeName(field.Of)
		}

	case property.KindRaw:
		expr = field.Of

	default:
		if field.Kind == property.KindID && field.IsFor == "" {
			return "", fmt.Errorf("id has no adapter binding")
		}
		scalar, ok := ScalarName[field.Kind]
		if !ok {
			return "", fmt.Errorf("unknown property kind %q", field.Kind)
		}
		expr = scalar
	}

	if field.IsRequired {
		expr += "!"
	}
	return expr, nil
}

func hasPrintable(schema *property.Property, input bool) bool {
	mode := property.ModeOutput
	if input {
		mode = property.ModeInput
	}
	for _, name := range schema.Fields.Names() {
		if schema.Fields.Get(name).Mode.Has(mode) {
			return true
		}
	}
	return false
}
