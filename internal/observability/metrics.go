package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"harmony-graphql/internal/logging"
)

// GraphQLMetrics measures GraphQL requests and the adapter work they cause.
// Every method is a no-op on a nil receiver, so callers can record through
// GraphQLMetricsFromContext without checking.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requests        metric.Int64Counter
	requestErrors   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram
	queryFields     metric.Int64Histogram

	operationDuration metric.Float64Histogram
	operationErrors   metric.Int64Counter

	batchKeys    metric.Int64Histogram
	batchResults metric.Int64Histogram
}

// InitMetrics creates the GraphQL instruments on the global meter provider.
func InitMetrics(logger *logging.Logger) (*GraphQLMetrics, error) {
	s := newInstruments()
	m := &GraphQLMetrics{
		requestDuration: s.millis("graphql.request.duration", "Duration of GraphQL requests"),
		requests:        s.counter("graphql.requests.total", "GraphQL requests served"),
		requestErrors:   s.counter("graphql.errors.total", "GraphQL requests answered with errors"),
		activeRequests:  s.upDown("graphql.requests.active", "GraphQL requests in flight"),
		queryDepth:      s.sizes("graphql.query.depth", "Selection depth of GraphQL operations"),
		queryFields:     s.sizes("graphql.query.fields", "Fields selected by GraphQL operations"),

		operationDuration: s.millis("harmony.operation.duration", "Duration of CRUD operations, scope and transform included"),
		operationErrors:   s.counter("harmony.operation.errors.total", "CRUD operations that failed"),

		batchKeys:    s.sizes("harmony.batch.keys", "Reference keys resolved by one adapter batch"),
		batchResults: s.sizes("harmony.batch.results", "Documents returned by one adapter batch"),
	}
	if err := s.err(); err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("GraphQL metrics initialized")
	return m, nil
}

// RecordRequest records one finished GraphQL request.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, millis(duration), attrs)
	m.requests.Add(ctx, 1, attrs)
	if hasErrors {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
}

// RecordShape records the size of an analyzed operation.
func (m *GraphQLMetrics) RecordShape(ctx context.Context, operationType string, depth, fields int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation_type", operationType))
	m.queryDepth.Record(ctx, int64(depth), attrs)
	m.queryFields.Record(ctx, int64(fields), attrs)
}

func (m *GraphQLMetrics) RequestStarted(ctx context.Context) {
	if m != nil {
		m.activeRequests.Add(ctx, 1)
	}
}

func (m *GraphQLMetrics) RequestFinished(ctx context.Context) {
	if m != nil {
		m.activeRequests.Add(ctx, -1)
	}
}

// RecordOperation records one CRUD operation run against an adapter.
func (m *GraphQLMetrics) RecordOperation(ctx context.Context, modelName, operation, adapterName string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", modelName),
		attribute.String("operation", operation),
		attribute.String("adapter", adapterName),
	}
	m.operationDuration.Record(ctx, millis(duration), metric.WithAttributes(append(attrs, attribute.Bool("success", err == nil))...))
	if err != nil {
		m.operationErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordBatch records one reference batch: how many keys the loader
// collected and how many documents the adapter returned for them.
func (m *GraphQLMetrics) RecordBatch(ctx context.Context, modelName, direction string, keys, results int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", modelName),
		attribute.String("direction", direction),
	)
	m.batchKeys.Record(ctx, int64(keys), attrs)
	m.batchResults.Record(ctx, int64(results), attrs)
}

type graphQLMetricsKey struct{}

// ContextWithGraphQLMetrics stores m in ctx for the resolvers of a request.
func ContextWithGraphQLMetrics(ctx context.Context, m *GraphQLMetrics) context.Context {
	return context.WithValue(ctx, graphQLMetricsKey{}, m)
}

// GraphQLMetricsFromContext returns the metrics stored in ctx, or nil.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(graphQLMetricsKey{}).(*GraphQLMetrics)
	return m
}
