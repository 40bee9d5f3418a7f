package resolver

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"

	"harmony-graphql/internal/model"
)

// accessor exposes one bundle to server-side code. Source and Info come from
// the field that is currently resolving.
type accessor struct {
	bundle *Bundle
	source any
	info   graphql.ResolveInfo
}

func (a accessor) op(alias model.Alias) (Internal, error) {
	op, ok := a.bundle.Op(alias)
	if !ok {
		return Internal{}, fmt.Errorf("model %s has no operation %q", a.bundle.Model.GraphQLName, alias)
	}
	return op, nil
}

func (a accessor) Call(ctx context.Context, alias model.Alias, args map[string]any) (any, error) {
	op, err := a.op(alias)
	if err != nil {
		return nil, err
	}
	return op.Scoped(ctx, model.Params{Source: a.source, Args: args, Info: a.info})
}

func (a accessor) Unscoped(ctx context.Context, alias model.Alias, args map[string]any) (any, error) {
	op, err := a.op(alias)
	if err != nil {
		return nil, err
	}
	return op.Unscoped(ctx, model.Params{Source: a.source, Args: args, Info: a.info})
}

// Reference loads one entity by _id through the request loaders and waits
// for the batch.
func (a accessor) Reference(ctx context.Context, id string) (any, error) {
	value, err := a.bundle.Reference(ctx, ReferenceParams{
		Source:       map[string]any{model.IDField: id},
		FieldName:    model.IDField,
		ForeignField: model.IDField,
		Info:         a.info,
	})
	if err != nil {
		return nil, err
	}
	return Resolve(value)
}

// Resolve waits for a value returned by a reference resolver.
func Resolve(value any) (any, error) {
	if thunk, ok := value.(func() (interface{}, error)); ok {
		return thunk()
	}
	return value, nil
}

// NewAccessors builds the accessors of every bundle, bound to the source and
// info of the field being resolved.
func NewAccessors(bundles map[string]*Bundle, source any, info graphql.ResolveInfo) model.Accessors {
	out := make(model.Accessors, len(bundles))
	for name, b := range bundles {
		out[name] = accessor{bundle: b, source: source, info: info}
	}
	return out
}

// BindAccessors fills registry with source-less accessors of every bundle.
// Bundles built earlier with the same registry see the entries.
func BindAccessors(registry model.Accessors, bundles map[string]*Bundle) {
	for name, b := range bundles {
		registry[name] = accessor{bundle: b}
	}
}
