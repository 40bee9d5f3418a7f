package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"harmony-graphql/internal/gqlrequest"
)

// GraphQLSpanAttributes describes an analyzed request on a span. role is the
// database role the request runs as, if any.
func GraphQLSpanAttributes(a *gqlrequest.Analysis, role string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if a != nil {
		if a.Request.OperationName != "" {
			attrs = append(attrs, attribute.String("graphql.operation.requested_name", a.Request.OperationName))
		}
		if a.Request.Size > 0 {
			attrs = append(attrs, attribute.Int("graphql.document.size_bytes", a.Request.Size))
		}
		if a.Operation != nil {
			attrs = append(attrs,
				attribute.String("graphql.operation.name", a.OperationName),
				attribute.String("graphql.operation.type", a.OperationType),
				attribute.String("graphql.operation.hash", a.Hash),
				attribute.StringSlice("graphql.operation.root_fields", a.RootFields),
				attribute.Int("graphql.query.field_count", a.FieldCount),
				attribute.Int("graphql.query.depth", a.Depth),
			)
		}
	}
	if role != "" {
		attrs = append(attrs, attribute.String("db.role", role))
	}
	return attrs
}

// GraphQLLogFields describes an analyzed request as slog attributes and adds
// the trace id when ctx carries a valid span.
func GraphQLLogFields(ctx context.Context, a *gqlrequest.Analysis, role string) []any {
	var fields []any
	if a != nil && a.Operation != nil {
		fields = append(fields,
			slog.String("operation_name", a.OperationName),
			slog.String("operation_type", a.OperationType),
			slog.String("operation_hash", a.Hash),
			slog.Any("root_fields", a.RootFields),
		)
	}
	if role != "" {
		fields = append(fields, slog.String("role", role))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, slog.String("trace_id", sc.TraceID().String()))
	}
	return fields
}
