package api

import "testing"

func TestTLSFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		cert    string
		key     string
		enabled bool
	}{
		{"no env vars", "", "", false},
		{"only cert", "/path/to/cert.pem", "", false},
		{"only key", "", "/path/to/key.pem", false},
		{"both set", "/path/to/cert.pem", "/path/to/key.pem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LAZYSEARCH_TLS_CERT", tt.cert)
			t.Setenv("LAZYSEARCH_TLS_KEY", tt.key)

			cfg := TLSFromEnv()
			if cfg.Enabled() != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", cfg.Enabled(), tt.enabled)
			}
			if tt.enabled && (cfg.CertFile != tt.cert || cfg.KeyFile != tt.key) {
				t.Errorf("unexpected paths %+v", cfg)
			}
		})
	}
}

func TestNewTLSConfigPrefersConfiguredPaths(t *testing.T) {
	t.Setenv("LAZYSEARCH_TLS_CERT", "/env/cert.pem")
	t.Setenv("LAZYSEARCH_TLS_KEY", "/env/key.pem")

	cfg := NewTLSConfig("/etc/searchd/cert.pem", "")
	if !cfg.Enabled() {
		t.Fatal("expected TLS to be enabled")
	}
	if cfg.CertFile != "/etc/searchd/cert.pem" || cfg.KeyFile != "/env/key.pem" {
		t.Errorf("unexpected paths %+v", cfg)
	}

	t.Setenv("LAZYSEARCH_TLS_KEY", "")
	if NewTLSConfig("/etc/searchd/cert.pem", "") != nil {
		t.Error("expected nil without a key")
	}
}

func TestTLSLoad(t *testing.T) {
	var disabled *TLSConfig
	cfg, err := disabled.Load()
	if cfg != nil || err != nil {
		t.Errorf("disabled TLS should load nothing, got %v %v", cfg, err)
	}

	missing := &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	if _, err := missing.Load(); err == nil {
		t.Error("expected error when cert files don't exist")
	}
}

func TestStartFailsWithBadCertificate(t *testing.T) {
	s := NewServer(Options{
		Address: "127.0.0.1:0",
		Bus:     newTestBus(),
		TLS:     &TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"},
	})
	if err := s.Start(); err == nil {
		t.Error("expected Start to fail with unreadable certificate")
	}
	if s.Addr() != "" {
		t.Error("server must not listen after a TLS failure")
	}
}
