package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestJWTResolverNestedClaim(t *testing.T) {
	resolver := NewJWTResolver(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"data": map[string]any{
			"user": map[string]any{"id": float64(42)},
		},
		"sub": "ignored-when-nested-present",
	})

	userID, err := resolver.Resolve(bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "42", userID)
}

func TestJWTResolverSubFallback(t *testing.T) {
	resolver := NewJWTResolver(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-17"})

	userID, err := resolver.Resolve(bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "user-17", userID)
}

func TestJWTResolverUserIDFallback(t *testing.T) {
	resolver := NewJWTResolver(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "u99"})

	userID, err := resolver.Resolve(bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "u99", userID)
}

func TestJWTResolverRejectsWrongSecret(t *testing.T) {
	resolver := NewJWTResolver(testSecret)
	token := signToken(t, "another-secret", jwt.MapClaims{"sub": "u1"})

	_, err := resolver.Resolve(bearerRequest(token))
	assert.Error(t, err)
}

func TestJWTResolverRejectsMissingIdentity(t *testing.T) {
	resolver := NewJWTResolver(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"iss": "pida"})

	_, err := resolver.Resolve(bearerRequest(token))
	assert.Error(t, err)
}

func TestJWTResolverRejectsMalformedHeader(t *testing.T) {
	resolver := NewJWTResolver(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := resolver.Resolve(r)
	assert.Error(t, err, "missing header")

	r.Header.Set("Authorization", "Token abc")
	_, err = resolver.Resolve(r)
	assert.Error(t, err, "wrong scheme")
}

func TestHeaderResolver(t *testing.T) {
	resolver := NewHeaderResolver("X-User-ID")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", " u7 ")
	userID, err := resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "u7", userID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = resolver.Resolve(r)
	assert.Error(t, err)
}

func TestIdentityMiddleware(t *testing.T) {
	resolver := NewHeaderResolver("")
	var seenUserID string
	handler := Identity(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", "u3")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u3", seenUserID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"could not validate credentials"}`, w.Body.String())
}
