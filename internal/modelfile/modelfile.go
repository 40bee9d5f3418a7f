// Package modelfile reads model declarations from YAML.
//
// A field is either a shorthand string such as "string", "number!" or
// "[string]", a one-item sequence for arrays, a mapping with a "type" key,
// or a mapping of nested fields. Field order follows the file.
package modelfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"harmony-graphql/internal/model"
	"harmony-graphql/internal/property"
)

// File is a parsed model file.
type File struct {
	Strict         bool    `yaml:"strict"`
	Prefix         string  `yaml:"prefix"`
	DefaultAdapter string  `yaml:"default_adapter"`
	Models         []Model `yaml:"models"`
}

// Model is one model declaration.
type Model struct {
	Name     string   `yaml:"name"`
	Adapter  string   `yaml:"adapter"`
	External bool     `yaml:"external"`
	Schema   Fields   `yaml:"schema"`
	Computed Computed `yaml:"computed"`
}

// Computed holds the computed fields and custom root fields of a model.
type Computed struct {
	Fields    map[string]Field `yaml:"fields"`
	Queries   map[string]Field `yaml:"queries"`
	Mutations map[string]Field `yaml:"mutations"`
}

// Fields is an ordered set of field declarations.
type Fields struct {
	*property.Fields
}

// UnmarshalYAML keeps the order of the mapping keys.
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	fields, err := decodeFields(node)
	if err != nil {
		return err
	}
	f.Fields = fields
	return nil
}

// Field is one field declaration together with the extras computed fields
// and custom root fields accept.
type Field struct {
	Property *property.Property
	Args     *property.Fields
	// Extends names the CRUD operation a custom root field is modelled on.
	Extends model.Operation
}

// UnmarshalYAML decodes a shorthand, sequence or mapping field.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := decodeField(node)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Load reads and parses the model file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a model file. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("invalid model file: %w", err)
	}
	for i, m := range file.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("model %d has no name", i)
		}
		if m.Schema.Fields == nil {
			file.Models[i].Schema.Fields = property.NewFields()
		}
	}
	return &file, nil
}

// decodeFields decodes a mapping of field declarations in file order.
func decodeFields(node *yaml.Node) (*property.Fields, error) {
	fields := property.NewFields()
	if isNull(node) {
		return fields, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of fields", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if fields.Has(key.Value) {
			return nil, fmt.Errorf("line %d: field %q declared twice", key.Line, key.Value)
		}
		field, err := decodeField(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key.Value, err)
		}
		if field.Args != nil || field.Extends != "" {
			return nil, fmt.Errorf("line %d: field %q: args and extends are only allowed on computed fields", key.Line, key.Value)
		}
		fields.Set(key.Value, field.Property)
	}
	return fields, nil
}

// decodeField decodes one field declaration.
func decodeField(node *yaml.Node) (Field, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		p, err := parseShorthand(node.Value)
		if err != nil {
			return Field{}, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return Field{Property: p}, nil

	case yaml.SequenceNode:
		if len(node.Content) != 1 {
			return Field{}, fmt.Errorf("line %d: an array declares exactly one element", node.Line)
		}
		elem, err := decodeField(node.Content[0])
		if err != nil {
			return Field{}, err
		}
		return Field{Property: property.Array(elem.Property)}, nil

	case yaml.MappingNode:
		if mappingValue(node, "type") == nil {
			fields, err := decodeFields(node)
			if err != nil {
				return Field{}, err
			}
			return Field{Property: property.SchemaOf(fields)}, nil
		}
		return decodeTyped(node)
	}
	return Field{}, fmt.Errorf("line %d: unsupported field declaration", node.Line)
}

// decodeTyped decodes a mapping with a "type" key.
func decodeTyped(node *yaml.Node) (Field, error) {
	var (
		out      Field
		typeName string
		of, on   *yaml.Node
		flags    struct{ required, unique, indexed, external bool }
		mode     property.Mode
	)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "type":
			err = value.Decode(&typeName)
		case "of":
			of = value
		case "on":
			on = value
		case "required":
			err = value.Decode(&flags.required)
		case "unique":
			err = value.Decode(&flags.unique)
		case "indexed":
			err = value.Decode(&flags.indexed)
		case "external":
			err = value.Decode(&flags.external)
		case "mode":
			mode, err = decodeMode(value)
		case "args":
			out.Args, err = decodeFields(value)
		case "extends":
			var op string
			if err = value.Decode(&op); err == nil {
				out.Extends, err = model.ParseOperation(op)
			}
		default:
			err = fmt.Errorf("unknown key %q", key.Value)
		}
		if err != nil {
			return Field{}, fmt.Errorf("line %d: %w", key.Line, err)
		}
	}

	p, err := buildTyped(node, typeName, of, on)
	if err != nil {
		return Field{}, err
	}
	if flags.required {
		p.Required()
	}
	if flags.unique {
		p.Unique()
	}
	if flags.indexed {
		p.Indexed()
	}
	if flags.external {
		p.External()
	}
	if mode != 0 {
		p.WithMode(mode)
	}
	out.Property = p
	return out, nil
}

func buildTyped(node *yaml.Node, typeName string, of, on *yaml.Node) (*property.Property, error) {
	kind, err := property.ParseKind(typeName)
	if err != nil {
		// Any shorthand is accepted as a type, so flags can be added to it.
		p, shortErr := parseShorthand(typeName)
		if shortErr != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, shortErr)
		}
		return p, nil
	}

	spec := property.Spec{Kind: kind}
	switch kind {
	case property.KindSchema:
		if of == nil {
			return nil, fmt.Errorf("line %d: schema needs \"of\"", node.Line)
		}
		fields, err := decodeFields(of)
		if err != nil {
			return nil, err
		}
		spec.Of = fields
	case property.KindArray:
		if of == nil {
			return nil, fmt.Errorf("line %d: array needs \"of\"", node.Line)
		}
		elem, err := decodeField(of)
		if err != nil {
			return nil, err
		}
		spec.Of = elem.Property
	case property.KindReference, property.KindReversedReference, property.KindRaw:
		if of == nil || of.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: %s needs \"of\"", node.Line, kind)
		}
		spec.Of = of.Value
		if on != nil {
			spec.On = on.Value
		}
	default:
		if of != nil {
			return nil, fmt.Errorf("line %d: %s does not take \"of\"", node.Line, kind)
		}
	}
	p, err := property.New(spec)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return p, nil
}

func decodeMode(node *yaml.Node) (property.Mode, error) {
	var names []string
	switch node.Kind {
	case yaml.ScalarNode:
		names = []string{node.Value}
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("mode must be a string or a list")
	}

	var mode property.Mode
	for _, name := range names {
		switch name {
		case "input":
			mode |= property.ModeInput
		case "output":
			mode |= property.ModeOutput
		case "both":
			mode |= property.ModeBoth
		default:
			return 0, fmt.Errorf("unknown mode %q", name)
		}
	}
	return mode, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}
