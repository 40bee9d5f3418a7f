package model

import (
	"fmt"

	"harmony-graphql/internal/naming"
	"harmony-graphql/internal/property"
)

// TypeIDsAndReferences binds every unbound id, reference and reversed
// reference of models to an adapter. Ids take the adapter of the model that
// owns them; references take the adapter of the model they point at, or the
// owner's when the target is unknown. It must run once every model of the
// set has been sanitized since references may point forward.
func TypeIDsAndReferences(models []*Sanitized) error {
	byType := make(map[string]*Sanitized, len(models))
	for _, m := range models {
		byType[m.GraphQLName] = m
	}

	for _, m := range models {
		bind := func(p *property.Property) error {
			if p.IsFor != "" {
				return nil
			}
			switch {
			case p.Kind == property.KindID:
				p.IsFor = m.Adapter
			case p.Kind.IsReference():
				target, ok := byType[naming.TypeName(p.Of)]
				if !ok {
					if p.Kind == property.KindReversedReference {
						return fmt.Errorf("model %q: reversed reference %q targets unknown model %q", m.Name, p.Name, p.Of)
					}
					p.IsFor = m.Adapter
					return nil
				}
				p.IsFor = target.Adapter
			}
			return nil
		}
		for _, schema := range []*property.Property{m.Schemas.Main, m.Schemas.Computed, m.Schemas.Queries, m.Schemas.Mutations} {
			if schema == nil {
				continue
			}
			if err := schema.Walk(bind); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup finds a model by its declared or GraphQL name.
func Lookup(models []*Sanitized, name string) (*Sanitized, bool) {
	typeName := naming.TypeName(name)
	for _, m := range models {
		if m.GraphQLName == typeName {
			return m, true
		}
	}
	return nil, false
}
