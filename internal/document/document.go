// Package document defines the entity representation exchanged between
// resolvers and storage adapters: an ordered key/value container whose values
// are restricted to a small set of dynamic variants.
package document

import (
	"sort"
	"strings"
)

// IDField is the identifier key every stored entity carries.
const IDField = "_id"

// Document is an ordered key/value map. Values are normalized on insertion to
// one of: nil, string, bool, int64, float64, time.Time, *Document, []any.
type Document struct {
	keys   []string
	values map[string]any
}

// New returns an empty document.
func New() *Document {
	return &Document{values: make(map[string]any)}
}

// FromMap builds a document from a plain map. Keys are sorted so the result is
// deterministic regardless of map iteration order.
func FromMap(m map[string]any) *Document {
	d := New()
	if m == nil {
		return d
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Set(k, m[k])
	}
	return d
}

// Len returns the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil.
func (d *Document) Value(key string) any {
	v, _ := d.Get(key)
	return v
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set stores a normalized value under key, keeping the original position of
// an existing key.
func (d *Document) Set(key string, value any) *Document {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = Normalize(value)
	return d
}

// Delete removes key from the document.
func (d *Document) Delete(key string) {
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for each key in order until fn returns false.
func (d *Document) Range(fn func(key string, value any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// ID returns the string form of the _id field, or "" when absent.
func (d *Document) ID() string {
	v, ok := d.Get(IDField)
	if !ok || v == nil {
		return ""
	}
	return String(v)
}

// Lookup resolves a dotted path through nested documents.
func (d *Document) Lookup(path string) (any, bool) {
	current := d
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := current.Get(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, isDoc := v.(*Document)
		if !isDoc {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		keys:   make([]string, len(d.keys)),
		values: make(map[string]any, len(d.values)),
	}
	copy(out.keys, d.keys)
	for k, v := range d.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Merge copies every key of patch into d. Nested documents are merged
// recursively so a partial update does not drop sibling fields.
func (d *Document) Merge(patch *Document) *Document {
	patch.Range(func(key string, value any) bool {
		existing, ok := d.values[key].(*Document)
		incoming, isDoc := value.(*Document)
		if ok && isDoc {
			existing.Merge(incoming)
			return true
		}
		d.Set(key, cloneValue(value))
		return true
	})
	return d
}

// ToMap converts the document and nested documents into plain maps.
func (d *Document) ToMap() map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		out[k] = plain(d.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.ToMap()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
