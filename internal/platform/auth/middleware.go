package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenQueryParam carries the token for clients that cannot set headers (browser WebSockets).
const TokenQueryParam = "access_token"

// Skipper lets a request through without a token.
type Skipper func(r *http.Request) bool

// Middleware validates bearer tokens and stores the parsed claims on the request context.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

func NewMiddleware(cfg Config, skipper Skipper) Middleware {
	return Middleware{Config: cfg, Skipper: skipper}
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err == nil {
			var claims *Claims
			if claims, err = Parse(token, m.Config); err == nil {
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
				return
			}
		}
		unauthorized(w, err)
	})
}

// bearerToken prefers the Authorization header and falls back to the query parameter.
// A present but non-bearer header is an error, not a fallback.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="habits"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
}
