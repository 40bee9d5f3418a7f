package observability

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// instruments creates instruments on one meter and keeps the first errors,
// so a constructor reports every failure at once.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func newInstruments() *instruments {
	return &instruments{meter: otel.Meter(ScopeName)}
}

func (s *instruments) fail(name string, err error) {
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("failed to create %s: %w", name, err))
	}
}

func (s *instruments) err() error {
	return errors.Join(s.errs...)
}

func (s *instruments) counter(name, description string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(description))
	s.fail(name, err)
	return c
}

func (s *instruments) upDown(name, description string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(description))
	s.fail(name, err)
	return c
}

func (s *instruments) millis(name, description string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("ms"))
	s.fail(name, err)
	return h
}

func (s *instruments) sizes(name, description string) metric.Int64Histogram {
	h, err := s.meter.Int64Histogram(name, metric.WithDescription(description))
	s.fail(name, err)
	return h
}

func (s *instruments) gauge(name, description, unit string) metric.Int64ObservableGauge {
	g, err := s.meter.Int64ObservableGauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	s.fail(name, err)
	return g
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
