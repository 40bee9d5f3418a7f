package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"harmony-graphql/internal/gqlrequest"
	"harmony-graphql/internal/logging"
)

func testConfig() Config {
	return Config{ServiceName: "harmony-graphql-test", ServiceVersion: "test", Environment: "test"}
}

func TestInitMeterProviderAndInstruments(t *testing.T) {
	mp, err := InitMeterProvider(testConfig())
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())
	defer func() { assert.NoError(t, mp.Shutdown(context.Background(), logging.Nop())) }()

	metrics, err := InitMetrics(logging.Nop())
	require.NoError(t, err)
	ctx := ContextWithGraphQLMetrics(context.Background(), metrics)
	assert.Same(t, metrics, GraphQLMetricsFromContext(ctx))

	metrics.RequestStarted(ctx)
	metrics.RecordShape(ctx, "query", 3, 7)
	metrics.RecordOperation(ctx, "list", "readMany", "mock", 2*time.Millisecond, nil)
	metrics.RecordOperation(ctx, "list", "create", "mock", time.Millisecond, errors.New("boom"))
	metrics.RecordBatch(ctx, "user", "single", 4, 3)
	metrics.RecordRequest(ctx, 5*time.Millisecond, false, "query")
	metrics.RequestFinished(ctx)

	reload, err := InitReloadMetrics(logging.Nop())
	require.NoError(t, err)
	reload.RecordReload(ctx, time.Millisecond, true, "watch", 3)
	reload.RecordReload(ctx, time.Millisecond, false, "admin", 0)
	assert.EqualValues(t, 3, reload.models.Load())
	assert.Positive(t, reload.lastSuccess.Load())

	security, err := InitSecurityMetrics()
	require.NoError(t, err)
	security.RecordAuth(ctx, "jwt", "")
	security.RecordAuth(ctx, "oidc", "expired")
	security.RecordRoleRejected(ctx, "not_allowed")
	security.RecordAdminRequest(ctx, "/admin/reload", true)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	ctx := context.Background()
	var metrics *GraphQLMetrics
	assert.NotPanics(t, func() {
		GraphQLMetricsFromContext(ctx).RecordBatch(ctx, "list", "multi", 1, 1)
		metrics.RecordRequest(ctx, time.Second, true, "mutation")
		metrics.RecordOperation(ctx, "list", "create", "mock", time.Second, nil)
		(*ReloadMetrics)(nil).RecordReload(ctx, time.Second, true, "watch", 1)
		(*SecurityMetrics)(nil).RecordAuth(ctx, "jwt", "invalid")
	})
}

func TestResolveExportSettings(t *testing.T) {
	s, err := resolveExportSettings(OTLPExporterConfig{
		Endpoint:         "https://otel.example.com/v1/traces",
		Protocol:         "http",
		Insecure:         true,
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.endpointURL)
	assert.True(t, s.gzip)
	assert.True(t, s.retry)
	assert.Nil(t, s.tls)
	assert.Len(t, s.traceHTTPOptions(), 4)

	s, err = resolveExportSettings(OTLPExporterConfig{Endpoint: "collector:4317", RetryEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.False(t, s.endpointURL)
	assert.False(t, s.retry)
	require.NotNil(t, s.tls)
	assert.Len(t, s.logGRPCOptions(), 2)

	_, err = resolveExportSettings(OTLPExporterConfig{Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestExporterTLSErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "missing.pem")}, wantErr: "failed to read OTLP TLS CA file"},
		{name: "invalid CA", cfg: OTLPExporterConfig{TLSCertFile: garbage}, wantErr: "failed to parse OTLP TLS CA file"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, wantErr: "must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exporterTLS(tt.cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func decision(s sdktrace.Sampler, parent context.Context, id byte) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       trace.TraceID{id},
		Name:          "test",
	}).Decision
}

func TestSamplerForRatio(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, sdktrace.Drop, decision(samplerForRatio(0), ctx, 1))
	assert.Equal(t, sdktrace.RecordAndSample, decision(samplerForRatio(1), ctx, 2))

	half := samplerForRatio(0.5)
	sampled := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	unsampled := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	assert.Equal(t, sdktrace.RecordAndSample, decision(half, sampled, 4))
	assert.Equal(t, sdktrace.Drop, decision(half, unsampled, 6))
}

func TestGraphQLRequestAttributes(t *testing.T) {
	a := gqlrequest.Analyze(gqlrequest.Request{Query: `mutation Add { listCreate(record: {title: "x"}) { _id } }`, Size: 52})
	require.NoError(t, a.Err)

	attrs := GraphQLSpanAttributes(a, "reader")
	keys := make(map[string]bool)
	for _, kv := range attrs {
		keys[string(kv.Key)] = true
	}
	for _, k := range []string{"graphql.operation.name", "graphql.operation.type", "graphql.operation.hash", "graphql.operation.root_fields", "graphql.query.depth", "graphql.document.size_bytes", "db.role"} {
		assert.True(t, keys[k], k)
	}
	assert.Empty(t, GraphQLSpanAttributes(nil, ""))

	fields := GraphQLLogFields(context.Background(), a, "")
	assert.Len(t, fields, 4)
}
