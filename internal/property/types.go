package property

func scalar(kind Kind) *Property {
	return &Property{Kind: kind}
}

// Boolean returns a boolean property.
func Boolean() *Property { return scalar(KindBoolean) }

// Date returns a date property.
func Date() *Property { return scalar(KindDate) }

// Float returns a float property.
func Float() *Property { return scalar(KindFloat) }

// ID returns an identifier property.
func ID() *Property { return scalar(KindID) }

// JSON returns an arbitrary JSON property.
func JSON() *Property { return scalar(KindJSON) }

// Number returns an integer property.
func Number() *Property { return scalar(KindNumber) }

// String returns a string property.
func String() *Property { return scalar(KindString) }

// Schema returns a nested schema property with ordered fields.
func Schema(fields ...Field) *Property {
	p := &Property{Kind: KindSchema}
	p.attachFields(NewFields(fields...))
	return p
}

// SchemaOf returns a nested schema property built from an existing field set.
func SchemaOf(fields *Fields) *Property {
	p := &Property{Kind: KindSchema}
	p.attachFields(fields)
	return p
}

// Array returns a list property of elem.
func Array(elem *Property) *Property {
	p := &Property{Kind: KindArray}
	p.attachElem(elem)
	return p
}

// Reference returns a property pointing at another model by _id.
func Reference(model string) *Property {
	return &Property{Kind: KindReference, Of: model}
}

// ReversedReference returns a property resolved by finding entities of model
// whose field on holds the current entity's _id. It is output-only.
func ReversedReference(model, on string) *Property {
	return &Property{Kind: KindReversedReference, Of: model, On: on, Mode: ModeOutput}
}

// Raw returns a property printed verbatim as the named GraphQL type.
func Raw(typeName string) *Property {
	return &Property{Kind: KindRaw, Of: typeName}
}

// F is shorthand for an ordered Field.
func F(name string, p *Property) Field {
	return Field{Name: name, Property: p}
}
