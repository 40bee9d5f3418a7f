package executable

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/document"
	"harmony-graphql/internal/resolver"
)

// federationFields are appended to Query: _service always, _entities only
// when at least one type carries @key.
func (b *builder) federationFields() graphql.Fields {
	service := graphql.NewObject(graphql.ObjectConfig{
		Name: serviceType,
		Fields: graphql.Fields{
			"sdl": &graphql.Field{Type: graphql.String},
		},
	})
	fields := graphql.Fields{
		"_service": &graphql.Field{
			Type: graphql.NewNonNull(service),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return map[string]interface{}{"sdl": b.sdl}, nil
			},
		},
	}
	if b.entity == nil {
		return fields
	}
	fields["_entities"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(b.entity)),
		Args: graphql.FieldConfigArgument{
			"representations": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.scalars[anyScalar]))),
			},
		},
		Resolve: b.resolveEntities,
	}
	return fields
}

type pendingEntity struct {
	typeName string
	value    interface{}
}

// resolveEntities runs __resolveReference for every representation before
// waiting on any of them, so lookups of one type share a loader batch.
// Types without a reference resolver resolve to the representation itself.
func (b *builder) resolveEntities(p graphql.ResolveParams) (interface{}, error) {
	reps, _ := p.Args["representations"].([]interface{})
	pending := make([]pendingEntity, 0, len(reps))
	for i, raw := range reps {
		rep, ok := raw.(map[string]interface{})
		if !ok {
			return nil, resolver.NewValidationError(fmt.Sprintf("representation %d is not an object", i))
		}
		typeName, _ := rep[typenameKey].(string)
		if !b.isEntity(typeName) {
			return nil, resolver.NewValidationError(fmt.Sprintf("representation %d has unknown entity type %q", i, typeName))
		}

		var value interface{} = rep
		if fn, ok := b.resolvers.Resolver(typeName, resolver.ResolveReferenceField); ok {
			resolved, err := fn(graphql.ResolveParams{
				Source:  rep,
				Args:    rep,
				Info:    p.Info,
				Context: p.Context,
			})
			if err != nil {
				return nil, err
			}
			value = resolved
		}
		pending = append(pending, pendingEntity{typeName: typeName, value: value})
	}

	return func() (interface{}, error) {
		out := make([]interface{}, len(pending))
		for i, e := range pending {
			value, err := resolver.Resolve(e.value)
			if err != nil {
				return nil, err
			}
			out[i] = withTypename(value, e.typeName)
		}
		return out, nil
	}, nil
}

func (b *builder) isEntity(typeName string) bool {
	for _, name := range b.keyed {
		if name == typeName {
			return true
		}
	}
	return false
}

func (b *builder) resolveEntityType(p graphql.ResolveTypeParams) *graphql.Object {
	var typeName string
	switch v := p.Value.(type) {
	case *document.Document:
		typeName, _ = v.Value(typenameKey).(string)
	case map[string]interface{}:
		typeName, _ = v[typenameKey].(string)
	}
	return b.objects[typeName]
}

// withTypename tags a resolved entity with its type so the _Entity union can
// resolve it. Entities are copied; loader caches keep the originals.
func withTypename(value interface{}, typeName string) interface{} {
	switch v := value.(type) {
	case *document.Document:
		if v == nil {
			return nil
		}
		return v.Clone().Set(typenameKey, typeName)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v)+1)
		for k, val := range v {
			out[k] = val
		}
		out[typenameKey] = typeName
		return out
	}
	return value
}
