package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"

	"harmony-graphql/internal/logging"
)

const (
	autoCertName = "server.crt"
	autoKeyName  = "server.key"
	autoValidity = 365 * 24 * time.Hour
	// autoRenewBefore regenerates certificates close to expiry.
	autoRenewBefore = 7 * 24 * time.Hour
)

var defaultAutoHosts = []string{"localhost", "127.0.0.1", "::1"}

type autoSource struct {
	certPath string
	keyPath  string
}

func newAutoSource(cfg Config, logger *logging.Logger) (*autoSource, error) {
	hosts := cfg.AutoHosts
	if len(hosts) == 0 {
		hosts = defaultAutoHosts
	}
	dir := cfg.AutoCertDir
	if dir == "" {
		dir = DefaultAutoCertDir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	s := &autoSource{
		certPath: filepath.Join(dir, autoCertName),
		keyPath:  filepath.Join(dir, autoKeyName),
	}
	if usable(s.certPath, s.keyPath, hosts, time.Now()) {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", s.certPath))
		return s, nil
	}

	logger.Info("generating self-signed certificate",
		slog.String("cert_path", s.certPath),
		slog.Any("hosts", hosts))
	if err := generate(s.certPath, s.keyPath, hosts, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	logger.Warn("self-signed certificate generated, not suitable for production", slog.String("cert_path", s.certPath))
	return s, nil
}

func (s *autoSource) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func (s *autoSource) Description() string {
	return fmt.Sprintf("self-signed (cert=%s), development only", s.certPath)
}

func generate(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Harmony GraphQL (self-signed)"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(autoValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	return nil
}

// usable reports whether an existing pair loads, covers hosts and is not
// about to expire.
func usable(certPath, keyPath string, hosts []string, now time.Time) bool {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return false
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return false
	}
	if now.Before(cert.NotBefore) || now.Add(autoRenewBefore).After(cert.NotAfter) {
		return false
	}
	return sameHosts(cert, hosts)
}

func sameHosts(cert *x509.Certificate, hosts []string) bool {
	var dns, ips []string
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			ips = append(ips, ip.String())
		} else {
			dns = append(dns, host)
		}
	}
	actualIPs := make([]string, 0, len(cert.IPAddresses))
	for _, ip := range cert.IPAddresses {
		actualIPs = append(actualIPs, ip.String())
	}
	return sameSet(dns, cert.DNSNames) && sameSet(ips, actualIPs)
}

func sameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}
