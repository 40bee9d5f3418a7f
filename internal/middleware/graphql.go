package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"harmony-graphql/internal/gqlrequest"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
)

// GraphQLAnalysis analyzes GraphQL payloads before execution and stores the
// result for the middleware after it. Operations selecting deeper than
// maxDepth are rejected; zero disables the limit. Requests that fail
// analysis pass through so the GraphQL handler reports the error.
func GraphQLAnalysis(maxDepth int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && (r.Method != http.MethodGet || r.URL.Query().Get("query") == "") {
				next.ServeHTTP(w, r)
				return
			}
			a := gqlrequest.AnalyzeHTTP(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), a)
			if a.Operation != nil {
				role, _ := DBRoleFromContext(ctx)
				logger := logging.FromContext(ctx).WithFields(observability.GraphQLLogFields(ctx, a, role)...)
				ctx = logging.WithLogger(ctx, logger)
			}
			if maxDepth > 0 && a.Operation != nil && a.Depth > maxDepth {
				logging.FromContext(ctx).Warn("operation rejected by depth limit",
					slog.Int("depth", a.Depth),
					slog.Int("max_depth", maxDepth),
				)
				writeGraphQLError(w, http.StatusBadRequest,
					fmt.Sprintf("operation depth %d exceeds the limit of %d", a.Depth, maxDepth),
					"DEPTH_LIMIT_EXCEEDED")
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GraphQLMetrics records request metrics and hands metrics to the
// resolvers through the request context.
func GraphQLMetrics(metrics *observability.GraphQLMetrics) Middleware {
	if metrics == nil {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := gqlrequest.AnalysisFromContext(r.Context())
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			operationType := "unknown"
			if a.Operation != nil {
				operationType = a.OperationType
				metrics.RecordShape(ctx, operationType, a.Depth, a.FieldCount)
			}

			metrics.RequestStarted(ctx)
			defer metrics.RequestFinished(ctx)
			start := time.Now()
			rec := newStatusRecorder(w, true)
			next.ServeHTTP(rec, r.WithContext(ctx))

			failed := rec.status >= 400 || hasGraphQLErrors(rec.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), failed, operationType)
		})
	}
}

// GraphQLTracing wraps execution in a "graphql.execute" span described by
// the request analysis, and adds the trace ids to the request logger.
func GraphQLTracing() Middleware {
	tracer := otel.Tracer(observability.ScopeName + "/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := gqlrequest.AnalysisFromContext(r.Context())
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			role, _ := DBRoleFromContext(ctx)
			span.SetAttributes(observability.GraphQLSpanAttributes(a, role)...)
			if a.Err != nil {
				span.SetAttributes(attribute.String("graphql.analysis.error", a.Err.Error()))
			}

			rec := newStatusRecorder(w, true)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= 400 || hasGraphQLErrors(rec.body.Bytes()) {
				span.SetStatus(codes.Error, "graphql response has errors")
			}
		})
	}
}
