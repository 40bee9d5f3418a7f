// Package property describes model fields as a typed tree. Each node carries
// its kind, nested shape, input/output mode, storage flags, the adapter an id
// or reference is bound to, and a non-owning link to its parent.
package property

import (
	"fmt"

	"harmony-graphql/internal/naming"
)

// Kind identifies the shape of a property.
type Kind string

const (
	KindBoolean           Kind = "boolean"
	KindDate              Kind = "date"
	KindFloat             Kind = "float"
	KindID                Kind = "id"
	KindJSON              Kind = "json"
	KindNumber            Kind = "number"
	KindString            Kind = "string"
	KindSchema            Kind = "schema"
	KindArray             Kind = "array"
	KindReference         Kind = "reference"
	KindReversedReference Kind = "reversed-reference"
	KindRaw               Kind = "raw"
)

var allKinds = []Kind{
	KindBoolean, KindDate, KindFloat, KindID, KindJSON, KindNumber, KindString,
	KindSchema, KindArray, KindReference, KindReversedReference, KindRaw,
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown property kind %q", s)
}

// IsScalar reports whether the kind is a leaf value stored as-is.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBoolean, KindDate, KindFloat, KindID, KindJSON, KindNumber, KindString:
		return true
	}
	return false
}

// IsReference reports whether the kind resolves to another model.
func (k Kind) IsReference() bool {
	return k == KindReference || k == KindReversedReference
}

// NeedsAdapter reports whether the kind must be bound to an adapter before
// it can be printed.
func (k Kind) NeedsAdapter() bool {
	return k == KindID || k.IsReference()
}

// Mode is a set of contexts a field is exposed in. The zero value means both.
type Mode uint8

const (
	ModeInput Mode = 1 << iota
	ModeOutput
)

// ModeBoth is the explicit form of the zero mode.
const ModeBoth = ModeInput | ModeOutput

// Has reports whether m includes other. An empty mode includes everything.
func (m Mode) Has(other Mode) bool {
	return m == 0 || m&other != 0
}

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeBoth:
		return "input,output"
	}
	return ""
}

// Property is one node of a field tree.
type Property struct {
	Kind Kind
	Name string

	// Fields holds the nested schema of a KindSchema node.
	Fields *Fields
	// Elem is the element of a KindArray node.
	Elem *Property
	// Of names the target model of a reference or the type of a raw node.
	Of string
	// On names the foreign field a reversed reference is matched against.
	On string

	Mode       Mode
	IsRequired bool
	IsUnique   bool
	IsIndexed  bool
	IsExternal bool
	// IsFor is the adapter an id or reference is bound to.
	IsFor string

	// Args is a KindSchema node describing resolver arguments.
	Args *Property

	// Parent links back to the owning node. It is never an ownership edge.
	Parent *Property
}

// Spec is the input to New.
type Spec struct {
	Kind Kind
	Name string
	// Of is a *Fields for schemas, a *Property for arrays, or a model or
	// type name for references and raw nodes.
	Of any
	On string
}

// New builds a property node from a spec.
func New(spec Spec) (*Property, error) {
	p := &Property{Kind: spec.Kind, Name: spec.Name, On: spec.On}
	switch spec.Kind {
	case KindSchema:
		fields, _ := spec.Of.(*Fields)
		if spec.Of != nil && fields == nil {
			return nil, fmt.Errorf("schema %q: expected fields, got %T", spec.Name, spec.Of)
		}
		p.attachFields(fields)
	case KindArray:
		elem, ok := spec.Of.(*Property)
		if !ok || elem == nil {
			return nil, fmt.Errorf("array %q: expected element property, got %T", spec.Name, spec.Of)
		}
		p.attachElem(elem)
	case KindReference, KindReversedReference, KindRaw:
		of, ok := spec.Of.(string)
		if !ok || of == "" {
			return nil, fmt.Errorf("%s %q: expected target name", spec.Kind, spec.Name)
		}
		p.Of = of
		if spec.Kind == KindReversedReference {
			if spec.On == "" {
				return nil, fmt.Errorf("reversed-reference %q: missing foreign field", spec.Name)
			}
			p.Mode = ModeOutput
		}
	default:
		if !spec.Kind.IsScalar() {
			return nil, fmt.Errorf("unknown property kind %q", spec.Kind)
		}
	}
	return p, nil
}

func (p *Property) attachFields(fields *Fields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.owner = p
	for _, name := range fields.names {
		child := fields.props[name]
		child.setName(name)
		child.Parent = p
	}
	p.Fields = fields
}

// setName names p and every unnamed element below it.
func (p *Property) setName(name string) {
	p.Name = name
	for elem := p.Elem; elem != nil && elem.Name == ""; elem = elem.Elem {
		elem.Name = name
	}
}

func (p *Property) attachElem(elem *Property) {
	elem.Parent = p
	p.Elem = elem
	if elem.Name == "" {
		elem.Name = p.Name
	}
}

// Required flags the property as non-null and returns it.
func (p *Property) Required() *Property {
	p.IsRequired = true
	return p
}

// Optional clears the required flag and returns the property.
func (p *Property) Optional() *Property {
	p.IsRequired = false
	return p
}

// Unique flags the property as unique and returns it.
func (p *Property) Unique() *Property {
	p.IsUnique = true
	return p
}

// Indexed flags the property as indexed and returns it.
func (p *Property) Indexed() *Property {
	p.IsIndexed = true
	return p
}

// External marks the property as owned by another federated service.
func (p *Property) External() *Property {
	p.IsExternal = true
	return p
}

// For binds the property to an adapter and returns it.
func (p *Property) For(adapter string) *Property {
	p.IsFor = adapter
	return p
}

// WithMode replaces the mode and returns the property.
func (p *Property) WithMode(modes ...Mode) *Property {
	var m Mode
	for _, mode := range modes {
		m |= mode
	}
	p.Mode = m
	return p
}

// WithArgs attaches resolver arguments and returns the property.
func (p *Property) WithArgs(args *Property) *Property {
	if args != nil {
		args.Parent = p
	}
	p.Args = args
	return p
}

// Clone deep-copies the node and everything it owns. The parent link is
// shared with the original.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	c := *p
	c.Fields = nil
	c.Elem = nil
	c.Args = nil
	if p.Fields != nil {
		c.attachFields(p.Fields.clone())
	}
	if p.Elem != nil {
		c.Elem = p.Elem.Clone()
		c.Elem.Parent = &c
	}
	if p.Args != nil {
		c.Args = p.Args.Clone()
		c.Args.Parent = &c
	}
	return &c
}

// Deep returns the innermost element of nested arrays.
func (p *Property) Deep() *Property {
	current := p
	for current.Kind == KindArray && current.Elem != nil {
		current = current.Elem
	}
	return current
}

// GraphQLName derives a type name from the path to this node. Array elements
// share the name of their array.
func (p *Property) GraphQLName() string {
	if p.Parent == nil {
		return naming.TypeName(p.Name)
	}
	if p.Parent.Kind == KindArray {
		return p.Parent.GraphQLName()
	}
	return p.Parent.GraphQLName() + naming.TypeName(p.Name)
}

// Walk visits the node, its nested fields, array elements and args depth
// first.
func (p *Property) Walk(fn func(*Property) error) error {
	if err := fn(p); err != nil {
		return err
	}
	switch p.Kind {
	case KindSchema:
		for _, name := range p.Fields.Names() {
			if err := p.Fields.Get(name).Walk(fn); err != nil {
				return err
			}
		}
	case KindArray:
		if p.Elem != nil {
			if err := p.Elem.Walk(fn); err != nil {
				return err
			}
		}
	}
	if p.Args != nil {
		return p.Args.Walk(fn)
	}
	return nil
}
