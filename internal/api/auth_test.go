package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthDisabledGrantsAccess(t *testing.T) {
	for _, a := range []*Auth{nil, NewAuth("", "", "op", "pw")} {
		if a.Enabled() {
			t.Fatal("auth should be disabled without admin credentials")
		}

		called := false
		req := httptest.NewRequest("GET", "/events", nil)
		w := httptest.NewRecorder()
		a.RequireAdmin(okHandler(&called))(w, req)

		if !called || w.Code != http.StatusOK {
			t.Errorf("handler should run when auth is disabled, got %d", w.Code)
		}
	}
}

func TestAuthRoles(t *testing.T) {
	a := NewAuth("admin", "secret", "operator", "opsecret")
	if !a.Enabled() {
		t.Fatal("auth should be enabled")
	}

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		admin      int
		any        int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized, http.StatusUnauthorized},
		{"wrong password", "admin", "nope", true, http.StatusUnauthorized, http.StatusUnauthorized},
		{"admin", "admin", "secret", true, http.StatusOK, http.StatusOK},
		{"operator", "operator", "opsecret", true, http.StatusForbidden, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range []struct {
				handler func(http.HandlerFunc) http.HandlerFunc
				want    int
			}{{a.RequireAdmin, tt.admin}, {a.RequireAnyRole, tt.any}} {
				called := false
				req := httptest.NewRequest("POST", "/control/cancel", nil)
				if tt.setAuth {
					req.SetBasicAuth(tt.user, tt.pass)
				}
				w := httptest.NewRecorder()
				c.handler(okHandler(&called))(w, req)

				if w.Code != c.want {
					t.Errorf("got status %d, want %d", w.Code, c.want)
				}
				if called != (c.want == http.StatusOK) {
					t.Errorf("handler called = %v for status %d", called, w.Code)
				}
				if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
					t.Error("expected WWW-Authenticate header")
				}
			}
		})
	}
}

func TestOperatorWithoutPasswordIsRejected(t *testing.T) {
	a := NewAuth("admin", "secret", "operator", "")
	called := false
	req := httptest.NewRequest("GET", "/events", nil)
	req.SetBasicAuth("operator", "")
	w := httptest.NewRecorder()
	a.RequireAnyRole(okHandler(&called))(w, req)

	if called || w.Code != http.StatusUnauthorized {
		t.Errorf("operator without password must be rejected, got %d", w.Code)
	}
}

func TestLoadAuthFromFiles(t *testing.T) {
	dir := t.TempDir()
	passFile := filepath.Join(dir, "admin_pass")
	if err := os.WriteFile(passFile, []byte("from-file\n"), 0600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}

	t.Setenv("LAZYSEARCH_ADMIN_USER", "root")
	t.Setenv("LAZYSEARCH_ADMIN_PASS", "")
	t.Setenv("LAZYSEARCH_ADMIN_PASS_FILE", passFile)
	t.Setenv("LAZYSEARCH_OPERATOR_USER", "")
	t.Setenv("LAZYSEARCH_OPERATOR_PASS", "")

	a, err := LoadAuth()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Enabled() {
		t.Fatal("auth should be enabled")
	}

	req := httptest.NewRequest("GET", "/events", nil)
	req.SetBasicAuth("root", "from-file")
	if role := a.authenticate(req); role != RoleAdmin {
		t.Errorf("expected admin role, got %q", role)
	}

	t.Setenv("LAZYSEARCH_ADMIN_PASS_FILE", filepath.Join(dir, "missing"))
	if _, err := LoadAuth(); err == nil {
		t.Error("expected error for missing secret file")
	}
}
