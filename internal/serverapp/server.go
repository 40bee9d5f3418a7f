package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"harmony-graphql/internal/config"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/tlscert"
)

var autoCertHosts = []string{"localhost", "127.0.0.1", "::1"}

// buildServer returns the HTTP server and, when TLS is enabled, its
// certificate source.
func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Source, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if !tlscert.Enabled(cfg.Server.TLSMode) {
		return srv, nil, nil
	}

	source, err := tlscert.New(tlscert.Config{
		Mode:        tlscert.Mode(cfg.Server.TLSMode),
		CertFile:    cfg.Server.TLSCertFile,
		KeyFile:     cfg.Server.TLSKeyFile,
		AutoCertDir: cfg.Server.TLSAutoCertDir,
		AutoHosts:   autoCertHosts,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if srv.TLSConfig, err = source.TLSConfig(); err != nil {
		return nil, nil, err
	}
	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", source.Description()),
	)
	return srv, source, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string, tlsEnabled bool) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		protocol := "http"
		if tlsEnabled {
			protocol = "https"
		}
		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", pathGraphQL),
			slog.String("health_endpoint", pathHealth),
			slog.String("model_file", cfg.Models.File),
			slog.Bool("model_watch", cfg.Models.Watch),
			slog.Int("graphql_max_depth", cfg.Server.GraphQLMaxDepth),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", pathMetrics))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", logAttrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
