// Package auth issues and verifies the service tokens used by bot and admin callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
	ErrUnknownRole   = errors.New("unknown role")
)

// Role is the privilege level of a service caller.
type Role string

const (
	// RoleBot may resolve, validate and meter usage for users.
	RoleBot Role = "bot"
	// RoleAdmin may additionally activate subscriptions and run maintenance.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBot || r == RoleAdmin
}

// ServiceClaims represents the claims in a service token.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenVerifier signs and verifies HS256 service tokens.
type TokenVerifier struct {
	key    []byte
	issuer string
	clock  clock.Clock
}

// NewTokenVerifier creates a verifier for tokens signed with key.
func NewTokenVerifier(key []byte, issuer string, clk clock.Clock) *TokenVerifier {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenVerifier{
		key:    key,
		issuer: issuer,
		clock:  clk,
	}
}

// Issue signs a token for subject with the given role.
// A non-positive ttl issues a token without expiry.
func (v *TokenVerifier) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingClaims
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := v.clock.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   v.issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Role: role,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken verifies a service token and returns its claims.
func (v *TokenVerifier) VerifyToken(tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.key, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.clock.Now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}

	return claims, nil
}
