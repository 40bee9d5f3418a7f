package filter

import (
	"fmt"
	"sort"

	"harmony-graphql/internal/document"
)

// SortKey is one dotted path and its direction.
type SortKey struct {
	Path       string
	Descending bool
}

// SortKeys flattens a sort input into dotted paths. Nested inputs sort by
// nested fields; paths are ordered lexically since input objects carry no
// order once decoded.
func SortKeys(input map[string]any) ([]SortKey, error) {
	var keys []SortKey
	var walk func(prefix string, m map[string]any) error
	walk = func(prefix string, m map[string]any) error {
		for _, name := range sortedKeys(m) {
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			value := m[name]
			if nested, ok := asMap(value); ok {
				if err := walk(path, nested); err != nil {
					return err
				}
				continue
			}
			if value == nil {
				continue
			}
			dir, ok := document.Float(value)
			if !ok {
				return fmt.Errorf("sort %s: expected a number, got %T", path, value)
			}
			if dir == 0 {
				continue
			}
			keys = append(keys, SortKey{Path: path, Descending: dir < 0})
		}
		return nil
	}
	if err := walk("", input); err != nil {
		return nil, err
	}
	return keys, nil
}

// Sort orders docs in place. Missing values sort first; incomparable values
// keep their relative order.
func Sort(docs []*document.Document, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			a, _ := docs[i].Lookup(key.Path)
			b, _ := docs[j].Lookup(key.Path)
			c := compareMissing(a, b)
			if c == 0 {
				continue
			}
			if key.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareMissing(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, ok := document.Compare(a, b)
	if !ok {
		return 0
	}
	return c
}

// Page applies skip and limit. A zero limit means no limit.
func Page[T any](items []T, skip, limit int) []T {
	if skip > 0 {
		if skip >= len(items) {
			return items[:0]
		}
		items = items[skip:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Query filters, sorts and pages docs. The input slice is not modified.
func Query(docs []*document.Document, f Filter, sortInput map[string]any, skip, limit int) ([]*document.Document, error) {
	keys, err := SortKeys(sortInput)
	if err != nil {
		return nil, err
	}
	out := make([]*document.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := Match(doc, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	Sort(out, keys)
	return Page(out, skip, limit), nil
}
