// Package filter evaluates generated filter and sort inputs against
// documents. Adapters without a native query language share it so that
// every backend gives the same answers.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"harmony-graphql/internal/document"
)

// Logical operators of a filter input.
const (
	And       = "_and"
	Or        = "_or"
	Nor       = "_nor"
	Operators = "_operators"
)

// Filter is a decoded filter input.
type Filter map[string]any

// Match reports whether doc satisfies f. Plain fields compare by equality;
// nested inputs match nested documents field by field; a list value matches
// a scalar when it contains it.
func Match(doc *document.Document, f Filter) (bool, error) {
	for _, key := range sortedKeys(f) {
		ok, err := matchKey(doc, key, f[key])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc *document.Document, key string, want any) (bool, error) {
	switch key {
	case And, Or, Nor:
		clauses, err := asFilters(want)
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		return matchLogical(doc, key, clauses)
	case Operators:
		ops, ok := asMap(want)
		if !ok {
			return false, fmt.Errorf("%s: expected an object, got %T", key, want)
		}
		for _, field := range sortedKeys(ops) {
			fieldOps, ok := asMap(ops[field])
			if !ok {
				return false, fmt.Errorf("%s.%s: expected an object, got %T", key, field, ops[field])
			}
			matched, err := MatchOperators(doc.Value(field), fieldOps)
			if err != nil {
				return false, fmt.Errorf("%s.%s: %w", key, field, err)
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil
	}

	got := doc.Value(key)
	if nested, ok := asMap(want); ok {
		sub, isDoc := got.(*document.Document)
		if !isDoc {
			return false, nil
		}
		return Match(sub, nested)
	}
	return equals(got, want), nil
}

func matchLogical(doc *document.Document, op string, clauses []Filter) (bool, error) {
	for _, clause := range clauses {
		ok, err := Match(doc, clause)
		if err != nil {
			return false, err
		}
		switch {
		case op == And && !ok:
			return false, nil
		case op == Or && ok:
			return true, nil
		case op == Nor && ok:
			return false, nil
		}
	}
	// An empty _or matches nothing, mirroring MongoDB.
	return op != Or, nil
}

// MatchOperators applies one field's operator input to value.
func MatchOperators(value any, ops map[string]any) (bool, error) {
	for _, name := range sortedKeys(ops) {
		arg := ops[name]
		var ok bool
		switch name {
		case "eq":
			ok = equals(value, arg)
		case "neq":
			ok = !equals(value, arg)
		case "exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("exists: expected a boolean, got %T", arg)
			}
			ok = (value != nil) == want
		case "in", "nin":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("%s: expected a list, got %T", name, arg)
			}
			found := false
			for _, candidate := range list {
				if equals(value, candidate) {
					found = true
					break
				}
			}
			ok = found == (name == "in")
		case "gt", "gte", "lt", "lte":
			ok = compare(value, arg, name)
		case "regex":
			pattern, isString := arg.(string)
			if !isString {
				return false, fmt.Errorf("regex: expected a string, got %T", arg)
			}
			re, err := compileRegex(pattern)
			if err != nil {
				return false, err
			}
			ok = matchString(value, re)
		case "some", "all":
			elemOps, isMap := asMap(arg)
			if !isMap {
				return false, fmt.Errorf("%s: expected an object, got %T", name, arg)
			}
			var err error
			ok, err = matchElements(value, elemOps, name == "all")
			if err != nil {
				return false, fmt.Errorf("%s: %w", name, err)
			}
		case "match":
			nested, isMap := asMap(arg)
			if !isMap {
				return false, fmt.Errorf("match: expected an object, got %T", arg)
			}
			sub, isDoc := value.(*document.Document)
			if !isDoc {
				return false, nil
			}
			for _, field := range sortedKeys(nested) {
				fieldOps, isMap := asMap(nested[field])
				if !isMap {
					return false, fmt.Errorf("match.%s: expected an object, got %T", field, nested[field])
				}
				matched, err := MatchOperators(sub.Value(field), fieldOps)
				if err != nil {
					return false, fmt.Errorf("match.%s: %w", field, err)
				}
				if !matched {
					return false, nil
				}
			}
			ok = true
		default:
			return false, fmt.Errorf("unknown operator %q", name)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchElements(value any, ops map[string]any, all bool) (bool, error) {
	list, ok := value.([]any)
	if !ok {
		return false, nil
	}
	for _, elem := range list {
		matched, err := MatchOperators(elem, ops)
		if err != nil {
			return false, err
		}
		if all && !matched {
			return false, nil
		}
		if !all && matched {
			return true, nil
		}
	}
	return all && len(list) > 0, nil
}

// equals compares a stored value with a filter value. A stored list matches
// when it equals the filter list or contains the filter scalar.
func equals(got, want any) bool {
	got, want = document.Normalize(got), document.Normalize(want)
	if document.Equal(got, want) {
		return true
	}
	if list, ok := got.([]any); ok {
		if _, wantList := want.([]any); !wantList {
			for _, elem := range list {
				if document.Equal(elem, want) {
					return true
				}
			}
		}
	}
	return false
}

func compare(got, want any, op string) bool {
	c, ok := document.Compare(got, want)
	if !ok {
		return false
	}
	switch op {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	default:
		return c <= 0
	}
}

func matchString(value any, re *regexp.Regexp) bool {
	switch v := value.(type) {
	case string:
		return re.MatchString(v)
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok && re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

var regexCache sync.Map

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Filter:
		return t, true
	case *document.Document:
		return t.ToMap(), true
	}
	return nil, false
}

func asFilters(v any) ([]Filter, error) {
	list, ok := v.([]any)
	if !ok {
		if m, isMap := asMap(v); isMap {
			return []Filter{m}, nil
		}
		return nil, fmt.Errorf("expected a list of filters, got %T", v)
	}
	out := make([]Filter, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		m, isMap := asMap(item)
		if !isMap {
			return nil, fmt.Errorf("expected a filter object, got %T", item)
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
