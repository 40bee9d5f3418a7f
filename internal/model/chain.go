package model

import "context"

// Chain wraps resolve with sequential scopes and transforms. Each scope sees
// the args produced by the previous one; a nil result keeps them. The first
// scope error skips resolve but still runs the transforms. Each transform
// replaces the value and error; a transform error stops the remaining ones.
func Chain(resolve ResolveFunc, scopes []ScopeFunc, transforms []TransformFunc) ResolveFunc {
	if len(scopes) == 0 && len(transforms) == 0 {
		return resolve
	}
	return func(ctx context.Context, p Params) (any, error) {
		value, err := runScopes(ctx, &p, scopes)
		if err == nil {
			value, err = resolve(ctx, p)
		}
		for _, transform := range transforms {
			value, err = transform(ctx, TransformParams{Params: p, Value: value, Err: err})
			if err != nil {
				break
			}
		}
		return value, err
	}
}

func runScopes(ctx context.Context, p *Params, scopes []ScopeFunc) (any, error) {
	for _, scope := range scopes {
		args, err := scope(ctx, *p)
		if err != nil {
			return nil, err
		}
		if args != nil {
			p.Args = args
		}
	}
	return nil, nil
}
