// Package tlscert provides the certificates of the HTTPS listener, either
// from files or generated for local development.
package tlscert

import (
	"crypto/tls"
	"fmt"

	"harmony-graphql/internal/logging"
)

// Mode selects where certificates come from.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeFile Mode = "file"
	// ModeAuto generates a self-signed certificate on first start.
	ModeAuto Mode = "auto"
)

// DefaultAutoCertDir is used by auto mode when no directory is configured.
const DefaultAutoCertDir = ".harmony/tls"

// MinTLSVersion is the minimum TLS version the server negotiates.
const MinTLSVersion = tls.VersionTLS13

// Config holds TLS certificate configuration.
type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	AutoCertDir string
	// AutoHosts are the DNS names and IPs of the generated certificate.
	AutoHosts []string
}

// Source provides the server TLS configuration.
type Source interface {
	TLSConfig() (*tls.Config, error)
	Description() string
}

// Enabled reports whether mode serves HTTPS.
func Enabled(mode string) bool {
	return mode != "" && Mode(mode) != ModeOff
}

// New creates the certificate source of cfg.Mode.
func New(cfg Config, logger *logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Component("tls")
	switch cfg.Mode {
	case ModeFile:
		return newFileSource(cfg, logger)
	case ModeAuto:
		return newAutoSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q (valid modes: file, auto)", cfg.Mode)
	}
}
