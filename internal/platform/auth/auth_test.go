package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "habits-test"}

func TestParseRoundTripsSignedToken(t *testing.T) {
	token, err := Sign(testConfig, "user-1", "Ada", []string{"habits:read", "habits:write"}, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "Ada", claims.Name)
	require.True(t, claims.HasScope("habits:read"))
	require.True(t, claims.HasScope("habits:write"))
	require.False(t, claims.HasScope("admin"))
	require.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt, 2*time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	expired, err := Sign(testConfig, "user-1", "", nil, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := Sign(Config{Secret: testConfig.Secret, Issuer: "other"}, "user-1", "", nil, time.Minute)
	require.NoError(t, err)
	_, err = Parse(wrongIssuer, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNormalizeScopesAcceptsListsAndStrings(t *testing.T) {
	require.Len(t, normalizeScopes([]interface{}{"a", "", "b"}), 2)
	require.Len(t, normalizeScopes("a  b c"), 3)
	require.Empty(t, normalizeScopes(nil))
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	token, err := Sign(testConfig, "user-9", "", []string{"habits:read"}, time.Minute)
	require.NoError(t, err)

	var seen *Claims
	handler := NewMiddleware(testConfig, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/view/stream?"+TokenQueryParam+"="+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-9", seen.Subject)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	require.JSONEq(t, `{"type":"unauthorized","detail":"missing bearer token"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Basic abc")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
