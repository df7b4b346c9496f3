// Package cache provides the entitlement cache used by the subscription
// service. Values are opaque byte slices; callers own the encoding.
package cache

import (
	"context"
	"time"
)

// Key identifies a cached value for one user.
type Key struct {
	Namespace string
	UserID    string
}

// String renders the key as "namespace:user".
func (k Key) String() string {
	return k.Namespace + ":" + k.UserID
}

// Cache stores short-lived per-user values.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key Key) error
	// InvalidatePrefix drops every key whose rendered form starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
	Close() error
}
