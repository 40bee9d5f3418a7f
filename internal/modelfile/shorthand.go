package modelfile

import (
	"fmt"
	"strings"
	"unicode"

	"harmony-graphql/internal/property"
)

// parseShorthand reads a kind name with an optional "!" suffix for required
// and "[...]" for arrays. Capitalized names refer to GraphQL types, such as
// custom scalars, and become raw fields.
func parseShorthand(s string) (*property.Property, error) {
	s = strings.TrimSpace(s)
	required := strings.HasSuffix(s, "!")
	s = strings.TrimSpace(strings.TrimSuffix(s, "!"))
	if s == "" {
		return nil, fmt.Errorf("empty field type")
	}

	var p *property.Property
	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		elem, err := parseShorthand(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		p = property.Array(elem)
	case unicode.IsUpper(rune(s[0])):
		p = property.Raw(s)
	default:
		kind, err := property.ParseKind(s)
		if err != nil {
			return nil, err
		}
		if !kind.IsScalar() {
			return nil, fmt.Errorf("%s needs the mapping form with \"of\"", kind)
		}
		p, err = property.New(property.Spec{Kind: kind})
		if err != nil {
			return nil, err
		}
	}

	if required {
		p.Required()
	}
	return p, nil
}
