package auth

import (
	"encoding/json"
	"net/http"

	authlib "github.com/itsnirmal/cheatcodeapp/internal/platform/auth"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics":
			return true
		}
		return r.Method == http.MethodOptions
	}
	return Middleware{inner: authlib.NewMiddleware(authlib.Config(cfg), skipper)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}

// RequireScope rejects requests whose claims lack scope with 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized", authlib.ErrMissingToken.Error())
				return
			}
			if !claims.HasScope(scope) {
				deny(w, http.StatusForbidden, "forbidden", "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": code, "detail": detail})
}
