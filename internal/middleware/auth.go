// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the resolved user ID.
	UserIDKey ContextKey = "user_id"
)

// IdentityResolver resolves the caller identity from a request. The two
// implementations (signed token and trusted header) are interchangeable
// and selected by configuration.
type IdentityResolver interface {
	Resolve(r *http.Request) (userID string, err error)
}

// JWTResolver extracts the user ID from an HMAC-signed bearer token.
//
// The user ID claim is looked up along an explicit precedence list: the
// WordPress plugin layout data.user.id first, then the standard sub claim,
// then a flat user_id claim. The first non-empty value wins.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a signed-token identity resolver.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

var claimPaths = [][]string{
	{"data", "user", "id"},
	{"sub"},
	{"user_id"},
}

// Resolve validates the bearer token and extracts the user ID.
func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header format")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	for _, path := range claimPaths {
		if id := lookupClaim(map[string]any(claims), path); id != "" {
			return id, nil
		}
	}
	return "", errors.New("token carries no user identity")
}

func lookupClaim(claims map[string]any, path []string) string {
	var current any = claims
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[key]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// HeaderResolver trusts an upstream-injected identity header. Only for
// deployments where a gateway already authenticated the caller.
type HeaderResolver struct {
	header string
}

// NewHeaderResolver creates a trusted-header identity resolver.
func NewHeaderResolver(header string) *HeaderResolver {
	if header == "" {
		header = "X-User-ID"
	}
	return &HeaderResolver{header: header}
}

// Resolve reads the trusted identity header.
func (h *HeaderResolver) Resolve(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(h.header))
	if userID == "" {
		return "", fmt.Errorf("missing %s header", h.header)
	}
	return userID, nil
}

// Identity creates authentication middleware around a resolver.
func Identity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"could not validate credentials"}`))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID gets the resolved user ID from context.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(UserIDKey); v != nil {
		return v.(string)
	}
	return ""
}
