package naming

import (
	"fmt"
	"strings"
	"unicode"
)

// Namer derives storage names from model names. It is shared by document
// adapters so every backend agrees on table naming.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration.
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration.
func Default() *Namer {
	return New(DefaultConfig())
}

// TableName converts a model name to a plural snake_case table name.
// Example: "userPreference" -> "user_preferences"
func (n *Namer) TableName(modelName string) string {
	words := splitWords(modelName)
	if len(words) == 0 {
		return ""
	}
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	last := len(words) - 1
	words[last] = n.Pluralize(words[last])
	return n.config.TablePrefix + strings.Join(words, "_")
}

// TypeName converts a declared name to a GraphQL type name (PascalCase).
// Example: "user_preference" -> "UserPreference", "list" -> "List"
func TypeName(name string) string {
	words := splitWords(name)
	for i, w := range words {
		words[i] = upperFirst(w)
	}
	return strings.Join(words, "")
}

// FieldName converts a declared name to a GraphQL field name (camelCase).
// Example: "UserPreference" -> "userPreference"
func FieldName(name string) string {
	words := splitWords(name)
	for i, w := range words {
		if i == 0 {
			words[i] = lowerFirst(w)
			continue
		}
		words[i] = upperFirst(w)
	}
	return strings.Join(words, "")
}

// splitWords splits on separators and on lower-to-upper case transitions.
func splitWords(s string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Registry tracks the GraphQL type names claimed by models so two
// declarations that normalize to the same name fail the build.
type Registry struct {
	seen map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]string)}
}

// Register claims the GraphQL type name of a declared model name.
func (r *Registry) Register(declared string) (string, error) {
	typeName := TypeName(declared)
	if err := ValidateTypeName(typeName); err != nil {
		return "", fmt.Errorf("model %q: %w", declared, err)
	}
	if existing, ok := r.seen[typeName]; ok {
		return "", fmt.Errorf("model %q collides with model %q on type name %q", declared, existing, typeName)
	}
	r.seen[typeName] = declared
	return typeName, nil
}
