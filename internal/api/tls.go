package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds the key pair the monitor serves with.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// NewTLSConfig returns the monitor's TLS settings. Paths left empty fall back
// to LAZYSEARCH_TLS_CERT and LAZYSEARCH_TLS_KEY. The result is nil, meaning
// plain HTTP, unless both paths end up set.
func NewTLSConfig(certFile, keyFile string) *TLSConfig {
	if certFile == "" {
		certFile = os.Getenv("LAZYSEARCH_TLS_CERT")
	}
	if keyFile == "" {
		keyFile = os.Getenv("LAZYSEARCH_TLS_KEY")
	}
	c := &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	if !c.Enabled() {
		return nil
	}
	return c
}

// TLSFromEnv reads the key pair paths from the environment only.
func TLSFromEnv() *TLSConfig {
	return NewTLSConfig("", "")
}

func (c *TLSConfig) Enabled() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Load reads the key pair. A disabled config loads to nil.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitor certificate %s: %w", c.CertFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
