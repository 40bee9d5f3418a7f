// Package operators synthesizes the comparison-operator input types used by
// generated filters. Types are memoized by a canonical structural key inside
// a Registry owned by one schema build, so identical shapes share one type.
package operators

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
)

const (
	leafPrefix     = "HarmonyJsOperator"
	internalPrefix = "HarmonyJsOperatorInternal"
	inputSuffix    = "Input"
	minHashLen     = 8
)

type operator struct {
	name string
	// kind overrides the inherited kind when set.
	kind  property.Kind
	array bool
}

var genericOperators = []operator{
	{name: "eq"},
	{name: "neq"},
	{name: "exists", kind: property.KindBoolean},
	{name: "in", array: true},
	{name: "nin", array: true},
}

var numberOperators = []operator{
	{name: "gte"},
	{name: "lte"},
	{name: "gt"},
	{name: "lt"},
}

var stringOperators = []operator{
	{name: "regex", kind: property.KindString},
}

// NumericKinds lists kinds that support ordered comparisons.
var NumericKinds = map[property.Kind]bool{
	property.KindNumber:            true,
	property.KindFloat:             true,
	property.KindDate:              true,
	property.KindID:                true,
	property.KindReference:         true,
	property.KindReversedReference: true,
}

// StringKinds lists kinds that support pattern matching.
var StringKinds = map[property.Kind]bool{
	property.KindString: true,
}

// Type is a registered operator type.
type Type struct {
	Name   string
	Schema *property.Property
}

// Registry memoizes operator types for one build.
type Registry struct {
	prefix string
	// byKey maps a canonical structural key to its type name.
	byKey map[string]string
	// owners maps a type name back to the key that claimed it.
	owners map[string]string
	types  []Type
}

// NewRegistry creates an empty registry. The prefix is inserted into the
// names of array and schema operator types.
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		byKey:  make(map[string]string),
		owners: make(map[string]string),
	}
}

// Types returns the synthesized types in registration order.
func (r *Registry) Types() []Type {
	out := make([]Type, len(r.types))
	copy(out, r.types)
	return out
}

// Lookup returns the schema of a registered operator type.
func (r *Registry) Lookup(name string) (*property.Property, bool) {
	for _, t := range r.types {
		if t.Name == name {
			return t.Schema, true
		}
	}
	return nil, false
}

// CreateOperatorType returns a schema mapping every field of schema to the
// input type of its operators.
func (r *Registry) CreateOperatorType(schema *property.Property) (*property.Property, error) {
	if schema.Kind != property.KindSchema {
		return nil, fmt.Errorf("operator type requires a schema, got %s", schema.Kind)
	}
	match := property.NewFields()
	for _, name := range schema.Fields.Names() {
		field, err := r.createOperatorField(schema.Fields.Get(name))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		match.Set(name, field)
	}
	return property.SchemaOf(match), nil
}

func (r *Registry) createOperatorField(p *property.Property) (*property.Property, error) {
	switch p.Kind {
	case property.KindArray:
		key := "[" + elementKey(p.Elem) + "]"
		name, fresh := r.claim(key)
		if fresh {
			some, err := r.createOperatorField(p.Elem)
			if err != nil {
				return nil, err
			}
			all, err := r.createOperatorField(p.Elem)
			if err != nil {
				return nil, err
			}
			r.register(name, property.Schema(
				property.F("exists", property.Boolean()),
				property.F("some", some),
				property.F("all", all),
			))
		}
		return property.Raw(name + inputSuffix), nil

	case property.KindSchema:
		key := "{" + schemaKey(p.Fields) + "}"
		name, fresh := r.claim(key)
		if fresh {
			match, err := r.CreateOperatorType(p)
			if err != nil {
				return nil, err
			}
			r.register(name, property.Schema(property.F("match", match)))
		}
		return property.Raw(name + inputSuffix), nil
	}

	if p.Kind.NeedsAdapter() && p.IsFor == "" {
		return nil, fmt.Errorf("%s property %q has no adapter binding", p.Kind, p.Name)
	}

	key := leafKey(p)
	name, ok := r.byKey[key]
	if !ok {
		name = leafPrefix + key
		r.byKey[key] = name
		r.owners[name] = key

		ops := property.NewFields()
		for _, op := range genericOperators {
			ops.Set(op.name, makeOperator(op, p))
		}
		if NumericKinds[p.Kind] {
			for _, op := range numberOperators {
				ops.Set(op.name, makeOperator(op, p))
			}
		}
		if StringKinds[p.Kind] {
			for _, op := range stringOperators {
				ops.Set(op.name, makeOperator(op, p))
			}
		}
		r.register(name, property.SchemaOf(ops))
	}
	return property.Raw(name + inputSuffix), nil
}

func (r *Registry) register(name string, schema *property.Property) {
	schema.Name = name
	r.types = append(r.types, Type{Name: name, Schema: schema})
}

// claim returns the type name for a structural key, allocating a new one
// when the key has not been seen. The name is a truncated digest of the key,
// lengthened until it no longer collides with a different key.
func (r *Registry) claim(key string) (string, bool) {
	if name, ok := r.byKey[key]; ok {
		return name, false
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	for n := minHashLen; ; n++ {
		name := internalPrefix + r.prefix + digest[:min(n, len(digest))]
		if owner, taken := r.owners[name]; taken && owner != key {
			if n >= len(digest) {
				// Exhausted the digest; fall back to an ordinal suffix.
				name = fmt.Sprintf("%s_%d", name, len(r.owners))
			} else {
				continue
			}
		}
		r.byKey[key] = name
		r.owners[name] = key
		return name, true
	}
}

func makeOperator(op operator, p *property.Property) *property.Property {
	kind := p.Kind
	if op.kind != "" {
		kind = op.kind
	}
	leaf := &property.Property{Kind: kind, IsFor: p.IsFor}
	if op.kind == "" {
		leaf.Of = p.Of
	}
	if op.array {
		return property.Array(leaf)
	}
	return leaf
}

// leafKey names the operator type of a scalar, reference or raw property.
func leafKey(p *property.Property) string {
	key := naming.TypeName(string(p.Kind))
	if p.Kind == property.KindRaw {
		key += naming.TypeName(p.Of)
	}
	return key
}

// elementKey encodes the shape of an array element.
func elementKey(p *property.Property) string {
	switch p.Kind {
	case property.KindArray:
		return "[" + elementKey(p.Elem) + "]"
	case property.KindSchema:
		return "{" + schemaKey(p.Fields) + "}"
	case property.KindRaw:
		return string(p.Kind) + ":" + p.Of
	}
	return string(p.Kind)
}

// schemaKey encodes a schema as sorted name--shape pairs.
func schemaKey(fields *property.Fields) string {
	names := fields.SortedNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"--"+elementKey(fields.Get(name)))
	}
	return strings.Join(parts, ",")
}
