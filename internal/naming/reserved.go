package naming

import (
	"fmt"
	"strings"
)

// graphqlReservedTypeWords contains GraphQL keywords, built-in types and the
// root operation types that a model must not shadow.
var graphqlReservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,

	// Scalars every generated schema declares.
	"date":   true,
	"json":   true,
	"number": true,

	"true":  true,
	"false": true,
	"null":  true,
}

// reservedTypePrefixes are used by generated operator types and federation.
var reservedTypePrefixes = []string{"harmonyjsoperator", "_"}

// ValidateTypeName rejects names that would collide with built-in or
// generated GraphQL types.
func ValidateTypeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty type name")
	}
	lower := strings.ToLower(name)
	if graphqlReservedTypeWords[lower] {
		return fmt.Errorf("type name %q is reserved", name)
	}
	for _, prefix := range reservedTypePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return fmt.Errorf("type name %q uses reserved prefix %q", name, prefix)
		}
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("type name %q contains invalid character %q", name, r)
		}
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("type name %q must not start with a digit", name)
	}
	return nil
}
