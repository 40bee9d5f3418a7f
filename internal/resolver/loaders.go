package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/document"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/observability"
)

// DefaultLoaderWait is how long a loader collects keys before it calls the
// adapter.
const DefaultLoaderWait = 2 * time.Millisecond

type direction string

const (
	single direction = "single"
	multi  direction = "multi"
)

type loaderKey struct {
	model     string
	direction direction
	field     string
}

// Loaders holds the batching loaders of one request. A Loaders value must
// never be shared across requests.
type Loaders struct {
	wait    time.Duration
	mu      sync.Mutex
	loaders map[loaderKey]*dataloader.Loader[string, any]
}

// NewLoaders creates an empty loader set. A non-positive wait selects
// DefaultLoaderWait.
func NewLoaders(wait time.Duration) *Loaders {
	if wait <= 0 {
		wait = DefaultLoaderWait
	}
	return &Loaders{
		wait:    wait,
		loaders: make(map[loaderKey]*dataloader.Loader[string, any]),
	}
}

type loadersKey struct{}

// WithLoaders attaches a loader set to the request context.
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, loaders)
}

// LoadersFromContext returns the loader set of the request, or a fresh one
// when the context carries none. A fresh set batches nothing beyond the
// calls made through it.
func LoadersFromContext(ctx context.Context) *Loaders {
	if loaders, ok := ctx.Value(loadersKey{}).(*Loaders); ok && loaders != nil {
		return loaders
	}
	return NewLoaders(0)
}

// loader returns the loader of (model, direction, field), creating it on
// first use.
func (l *Loaders) loader(a adapter.Adapter, m *model.Sanitized, dir direction, field string) *dataloader.Loader[string, any] {
	key := loaderKey{model: m.Name, direction: dir, field: field}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.loaders[key]; ok {
		return existing
	}
	created := dataloader.NewBatchedLoader(
		batchFunc(a, m, dir, field),
		dataloader.WithWait[string, any](l.wait),
	)
	l.loaders[key] = created
	return created
}

// batchFunc resolves every key with a single ResolveBatch call. A single
// loader yields the first match per key or nil; a multi loader yields every
// match. An adapter error fails the whole batch.
func batchFunc(a adapter.Adapter, m *model.Sanitized, dir direction, field string) dataloader.BatchFunc[string, any] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[any] {
		results := make([]*dataloader.Result[any], len(keys))
		docs, err := a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: field, Keys: keys})
		observability.GraphQLMetricsFromContext(ctx).RecordBatch(ctx, m.Name, string(dir), len(keys), len(docs))
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[any]{Error: err}
			}
			return results
		}

		for i, key := range keys {
			if dir == single {
				var found any
				for _, doc := range docs {
					if doc != nil && adapter.MatchField(doc.Value(field), key) {
						found = doc
						break
					}
				}
				results[i] = &dataloader.Result[any]{Data: found}
				continue
			}

			matches := make([]*document.Document, 0)
			for _, doc := range docs {
				if doc != nil && adapter.MatchField(doc.Value(field), key) {
					matches = append(matches, doc)
				}
			}
			results[i] = &dataloader.Result[any]{Data: matches}
		}
		return results
	}
}
