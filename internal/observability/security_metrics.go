package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication and authorization outcomes. Methods
// are no-ops on a nil receiver.
type SecurityMetrics struct {
	authAttempts  metric.Int64Counter
	authFailures  metric.Int64Counter
	roleRejected  metric.Int64Counter
	adminRequests metric.Int64Counter
}

func InitSecurityMetrics() (*SecurityMetrics, error) {
	s := newInstruments()
	m := &SecurityMetrics{
		authAttempts:  s.counter("security.auth.attempts.total", "Bearer token verifications"),
		authFailures:  s.counter("security.auth.failures.total", "Bearer token verifications that failed"),
		roleRejected:  s.counter("security.role.rejected.total", "Requests rejected for their database role"),
		adminRequests: s.counter("security.admin.requests.total", "Requests to admin endpoints"),
	}
	if err := s.err(); err != nil {
		return nil, fmt.Errorf("failed to initialize security metrics: %w", err)
	}
	return m, nil
}

// RecordAuth records one token verification by method ("oidc" or "jwt").
// reason is empty on success.
func (m *SecurityMetrics) RecordAuth(ctx context.Context, method, reason string) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", reason == ""),
	))
	if reason != "" {
		m.authFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("reason", reason),
		))
	}
}

func (m *SecurityMetrics) RecordRoleRejected(ctx context.Context, reason string) {
	if m != nil {
		m.roleRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *SecurityMetrics) RecordAdminRequest(ctx context.Context, endpoint string, allowed bool) {
	if m != nil {
		m.adminRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.Bool("allowed", allowed),
		))
	}
}
