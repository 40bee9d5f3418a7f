package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"harmony-graphql/internal/logging"
)

// fileSource serves a certificate pair from disk and reloads it when
// either file is modified, so certificates can be rotated in place.
type fileSource struct {
	certFile string
	keyFile  string
	logger   *logging.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func newFileSource(cfg Config, logger *logging.Logger) (*fileSource, error) {
	if cfg.CertFile == "" {
		return nil, fmt.Errorf("tls_cert_file is required when tls_mode=file")
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("tls_key_file is required when tls_mode=file")
	}
	if err := checkFile(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("invalid certificate file: %w", err)
	}
	if err := checkFile(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("invalid key file: %w", err)
	}
	if err := checkKeyPermissions(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("insecure key file: %w", err)
	}

	s := &fileSource{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := s.certificate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSource) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion: MinTLSVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return s.certificate()
		},
	}, nil
}

func (s *fileSource) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", s.certFile, s.keyFile)
}

// certificate returns the cached pair, reloading it when a file changed.
// A failed reload keeps serving the previous pair.
func (s *fileSource) certificate() (*tls.Certificate, error) {
	modTime, err := latestModTime(s.certFile, s.keyFile)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.cert != nil && !modTime.After(s.modTime) {
		return s.cert, nil
	}

	cert, loadErr := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if loadErr != nil {
		if s.cert != nil {
			s.logger.Error("failed to reload certificate, serving the previous one",
				slog.String("cert_file", s.certFile),
				slog.String("error", loadErr.Error()))
			return s.cert, nil
		}
		return nil, fmt.Errorf("failed to load certificate: %w", loadErr)
	}
	if s.cert != nil {
		s.logger.Info("certificate reloaded", slog.String("cert_file", s.certFile))
	}
	s.cert = &cert
	s.modTime = modTime
	return s.cert, nil
}

func latestModTime(paths ...string) (time.Time, error) {
	var latest time.Time
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

func checkKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file permissions %o allow group or other access (use 0600 or 0400)", perm)
	}
	return nil
}
