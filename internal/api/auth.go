package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/lazysearch/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Auth holds the monitor credentials. A nil or disabled Auth grants every
// request the admin role.
type Auth struct {
	adminUser    string
	adminPass    string
	operatorUser string
	operatorPass string
	enabled      bool
}

// NewAuth builds an Auth from explicit credentials. It is enabled only when
// both admin credentials are set.
func NewAuth(adminUser, adminPass, operatorUser, operatorPass string) *Auth {
	return &Auth{
		adminUser:    adminUser,
		adminPass:    adminPass,
		operatorUser: operatorUser,
		operatorPass: operatorPass,
		enabled:      adminUser != "" && adminPass != "",
	}
}

// LoadAuth resolves LAZYSEARCH_ADMIN_USER, LAZYSEARCH_ADMIN_PASS,
// LAZYSEARCH_OPERATOR_USER and LAZYSEARCH_OPERATOR_PASS, each of which may
// instead be given as a *_FILE path.
func LoadAuth() (*Auth, error) {
	v, err := config.EnvSecrets.ResolveAll(
		"LAZYSEARCH_ADMIN_USER",
		"LAZYSEARCH_ADMIN_PASS",
		"LAZYSEARCH_OPERATOR_USER",
		"LAZYSEARCH_OPERATOR_PASS",
	)
	if err != nil {
		return nil, err
	}
	return NewAuth(v[0], v[1], v[2], v[3]), nil
}

// Enabled returns true if authentication is configured.
func (a *Auth) Enabled() bool {
	return a != nil && a.enabled
}

// authenticate returns the role of the request's basic-auth credentials, or
// "" when they match nobody.
func (a *Auth) authenticate(r *http.Request) Role {
	if !a.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if secureCompare(user, a.adminUser) && secureCompare(pass, a.adminPass) {
		return RoleAdmin
	}
	if a.operatorUser != "" && a.operatorPass != "" &&
		secureCompare(user, a.operatorUser) && secureCompare(pass, a.operatorPass) {
		return RoleOperator
	}
	return ""
}

// secureCompare compares in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="lazysearch"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a *Auth) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func (a *Auth) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (a *Auth) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin)
}
