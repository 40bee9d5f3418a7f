package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
)

// telemetry holds the providers and instrument sets of one server. Every
// field is nil when its signal is disabled; the instrument sets are nil-safe.
type telemetry struct {
	meter    *observability.MeterProvider
	tracer   *observability.TracerProvider
	graphql  *observability.GraphQLMetrics
	reload   *observability.ReloadMetrics
	security *observability.SecurityMetrics
}

func (t telemetry) instrumented() bool {
	return t.meter != nil || t.tracer != nil
}

func serviceConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it fans out to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)
	provider, err := observability.InitLoggerProvider(serviceConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = provider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")
	return logger, provider, nil
}

// initTelemetry starts the meter and tracer providers and registers their
// shutdown on cleanup.
func initTelemetry(cfg *config.Config, logger *logging.Logger, cleanup *cleanupStack) (telemetry, error) {
	var t telemetry
	obs := cfg.Observability

	if obs.MetricsEnabled {
		meter, err := observability.InitMeterProvider(serviceConfig(cfg, obs.GetMetricsConfig()))
		if err != nil {
			return t, fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
		}
		cleanup.push("meter provider", func(ctx context.Context) error {
			return meter.Shutdown(ctx, logger)
		})
		t.meter = meter

		if t.graphql, err = observability.InitMetrics(logger); err != nil {
			return t, err
		}
		if t.reload, err = observability.InitReloadMetrics(logger); err != nil {
			return t, err
		}
		if t.security, err = observability.InitSecurityMetrics(); err != nil {
			return t, err
		}
		logger.Info("OpenTelemetry metrics initialized", slog.String("service_name", obs.ServiceName))
	}

	if obs.TracingEnabled {
		tracesConfig := obs.GetTracesConfig()
		tracer, err := observability.InitTracerProvider(serviceConfig(cfg, tracesConfig))
		if err != nil {
			return t, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
		}
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracer.Shutdown(ctx, logger)
		})
		t.tracer = tracer
		logger.Info("OpenTelemetry tracing initialized",
			slog.String("otlp_endpoint", tracesConfig.Endpoint),
			slog.String("otlp_protocol", tracesConfig.Protocol),
			slog.Float64("sample_ratio", obs.TraceSampleRatio),
		)
	}
	return t, nil
}
