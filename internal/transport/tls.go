package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	alpn            = "quic3"
	certValidityDur = 365 * 24 * time.Hour
)

// DefaultQUICConfig returns the QUIC settings used by both endpoints.
func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// GenerateCertPEM creates a self-signed ECDSA certificate valid for the
// given hosts and returns it as PEM-encoded certificate and key material.
func GenerateCertPEM(hosts []string) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		NotAfter:     time.Now().Add(certValidityDur),
		NotBefore:    time.Now(),
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"quic3"}},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Bytes: certDER, Type: "CERTIFICATE"})
	keyPEM = pem.EncodeToMemory(&pem.Block{Bytes: keyDER, Type: "EC PRIVATE KEY"})
	return certPEM, keyPEM, nil
}

// GenerateSelfSignedCert creates an in-memory self-signed certificate for
// the given hosts.
func GenerateSelfSignedCert(hosts []string) (tls.Certificate, error) {
	certPEM, keyPEM, err := GenerateCertPEM(hosts)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// EnsureServerCert loads the certificate and key at the given paths, or
// generates a self-signed pair for hosts and persists it there when either
// file is missing.
func EnsureServerCert(certPath, keyPath string, hosts []string) (tls.Certificate, error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if certErr == nil && keyErr == nil {
		return tls.LoadX509KeyPair(certPath, keyPath)
	}

	certPEM, keyPEM, err := GenerateCertPEM(hosts)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating certificate: %w", err)
	}

	for _, p := range []string{certPath, keyPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return tls.Certificate{}, fmt.Errorf("creating certificate directory: %w", err)
			}
		}
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return tls.Certificate{}, fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("writing key: %w", err)
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}

// ServerTLSConfig builds the listener-side TLS configuration around cert.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientTLSConfig builds a dialer-side TLS configuration that validates the
// server against the trust-anchor certificate at caCertPath and the
// expected serverName.
func ClientTLSConfig(caCertPath, serverName string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("reading trust anchor: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("trust anchor contains no usable certificates")
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		NextProtos: []string{alpn},
		MinVersion: tls.VersionTLS13,
	}, nil
}
