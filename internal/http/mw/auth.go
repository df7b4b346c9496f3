// Package mw contains HTTP middleware for the companion-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmylchreest/companion-api/internal/auth"
	"github.com/jmylchreest/companion-api/internal/logging"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// CallerClaimsKey is the context key for caller claims.
	CallerClaimsKey ContextKey = "caller_claims"
)

// CallerClaims identifies the bot or operator calling the API.
type CallerClaims struct {
	Subject string    // Token subject, e.g. the bot name
	Role    auth.Role // bot or admin
}

// IsAdmin reports whether the caller holds the admin role.
func (c *CallerClaims) IsAdmin() bool {
	return c != nil && c.Role == auth.RoleAdmin
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*auth.ServiceClaims, error)
}

// Auth returns a plain chi middleware that requires a valid service token.
// Used for raw routes that bypass Huma, such as /metrics.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			claims, err := validateToken(verifier, bearerToken(authHeader))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerClaimsKey, claims)
			ctx = logging.WithCaller(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentifyCaller attaches caller claims when a valid token is present and
// passes every request through. Rejection is left to HumaAuth; this only
// lets per-caller rate limits key on the subject.
func IdentifyCaller(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validateToken(verifier, bearerToken(authHeader))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), CallerClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(logging.WithCaller(ctx, claims.Subject)))
		})
	}
}

// RequireAdmin returns middleware that requires the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetCallerClaims(r.Context()).IsAdmin() {
				http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken strips an optional "Bearer " prefix.
func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// validateToken verifies a service token and converts it to CallerClaims.
func validateToken(verifier TokenVerifier, tokenString string) (*CallerClaims, error) {
	if verifier == nil {
		return nil, auth.ErrInvalidToken
	}
	claims, err := verifier.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &CallerClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}

// GetCallerClaims retrieves caller claims from context.
func GetCallerClaims(ctx context.Context) *CallerClaims {
	claims, ok := ctx.Value(CallerClaimsKey).(*CallerClaims)
	if !ok {
		return nil
	}
	return claims
}
