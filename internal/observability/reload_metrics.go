package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"harmony-graphql/internal/logging"
)

// ReloadMetrics measures rebuilds of the persistence instance after the
// model file changes or an operator asks for a reload.
type ReloadMetrics struct {
	reloads  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram

	lastSuccess atomic.Int64
	models      atomic.Int64
}

// InitReloadMetrics creates the reload instruments and the gauges reporting
// the time of the last successful reload and the number of models served.
func InitReloadMetrics(logger *logging.Logger) (*ReloadMetrics, error) {
	s := newInstruments()
	m := &ReloadMetrics{
		reloads:  s.counter("schema.reload.total", "Schema reload attempts"),
		failures: s.counter("schema.reload.errors.total", "Schema reload attempts that kept the previous schema"),
		duration: s.millis("schema.reload.duration", "Duration of schema reload attempts"),
	}
	lastSuccess := s.gauge("schema.reload.last_success_unix", "Unix time of the last successful schema reload", "s")
	models := s.gauge("schema.models", "Models in the served schema", "{model}")
	if err := s.err(); err != nil {
		return nil, fmt.Errorf("failed to initialize reload metrics: %w", err)
	}

	_, err := s.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if v := m.lastSuccess.Load(); v > 0 {
			o.ObserveInt64(lastSuccess, v)
		}
		o.ObserveInt64(models, m.models.Load())
		return nil
	}, lastSuccess, models)
	if err != nil {
		return nil, fmt.Errorf("failed to register reload gauge callback: %w", err)
	}

	logger.Info("schema reload metrics initialized")
	return m, nil
}

// RecordReload records one reload attempt. modelCount is only used when the
// reload succeeded.
func (m *ReloadMetrics) RecordReload(ctx context.Context, duration time.Duration, success bool, trigger string, modelCount int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	)
	m.reloads.Add(ctx, 1, attrs)
	m.duration.Record(ctx, millis(duration), attrs)
	if !success {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}
	m.lastSuccess.Store(time.Now().Unix())
	m.models.Store(int64(modelCount))
}
