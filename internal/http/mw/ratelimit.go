package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// CallerRequestsPerMinute limits each authenticated caller.
	// A value of 0 means unlimited (no rate limiting applied)
	CallerRequestsPerMinute int
	// IPRequestsPerMinute is a fallback rate limit by IP for unauthenticated requests
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the limits used when nothing is configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		CallerRequestsPerMinute: 600,
		IPRequestsPerMinute:     120,
	}
}

// callerKey keys requests by caller subject, falling back to the client IP.
func callerKey(r *http.Request) (string, error) {
	claims := GetCallerClaims(r.Context())
	if claims == nil || claims.Subject == "" {
		return httprate.KeyByIP(r)
	}
	return "caller:" + claims.Subject, nil
}

// RateLimitByCaller returns a middleware that rate limits by caller subject.
// Should be applied AFTER authentication middleware.
// Falls back to IP-based limiting if the caller is not authenticated.
// Honors CallerRequestsPerMinute=0 as unlimited for authenticated callers.
func RateLimitByCaller(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var callerLimiter *httprate.RateLimiter
	if cfg.CallerRequestsPerMinute > 0 {
		callerLimiter = httprate.NewRateLimiter(
			cfg.CallerRequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(callerKey),
		)
	}

	fallbackLimiter := httprate.NewRateLimiter(
		cfg.IPRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	return func(next http.Handler) http.Handler {
		callerHandler := next
		if callerLimiter != nil {
			callerHandler = callerLimiter.Handler(next)
		}
		fallbackHandler := fallbackLimiter.Handler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetCallerClaims(r.Context()) == nil {
				fallbackHandler.ServeHTTP(w, r)
				return
			}
			callerHandler.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Useful for public endpoints or as a global fallback.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
