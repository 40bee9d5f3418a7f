package property

import "sort"

// Fields is an insertion-ordered set of named properties.
type Fields struct {
	names []string
	props map[string]*Property
	owner *Property
}

// Field pairs a name with a property for ordered construction.
type Field struct {
	Name     string
	Property *Property
}

// NewFields returns an empty field set.
func NewFields(fields ...Field) *Fields {
	f := &Fields{props: make(map[string]*Property)}
	for _, field := range fields {
		f.Set(field.Name, field.Property)
	}
	return f
}

// FieldsOf builds a field set from a map, ordering keys alphabetically.
func FieldsOf(m map[string]*Property) *Fields {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	f := NewFields()
	for _, name := range names {
		f.Set(name, m[name])
	}
	return f
}

// Set adds or replaces a field. A replaced field keeps its position.
func (f *Fields) Set(name string, p *Property) {
	if _, exists := f.props[name]; !exists {
		f.names = append(f.names, name)
	}
	p.setName(name)
	if f.owner != nil {
		p.Parent = f.owner
	}
	f.props[name] = p
}

// Get returns the field with the given name, or nil.
func (f *Fields) Get(name string) *Property {
	if f == nil {
		return nil
	}
	return f.props[name]
}

// Has reports whether a field exists.
func (f *Fields) Has(name string) bool {
	return f.Get(name) != nil
}

// Delete removes a field.
func (f *Fields) Delete(name string) {
	if f == nil {
		return
	}
	if _, exists := f.props[name]; !exists {
		return
	}
	delete(f.props, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
}

// Names returns field names in order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// SortedNames returns field names in lexical order.
func (f *Fields) SortedNames() []string {
	names := f.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.names)
}

func (f *Fields) clone() *Fields {
	out := NewFields()
	for _, name := range f.Names() {
		out.Set(name, f.props[name].Clone())
	}
	return out
}
