package canteen

import (
	"context"
	"time"
)

// Cache is the shared key/value cache contract. The Redis client in the
// redis package is the production implementation; tests substitute the
// in-memory mock. A false "found" result with a nil error means the key is
// absent, never an error condition.
type Cache interface {
	// Ping tests cache connectivity.
	Ping(ctx context.Context) error
	// Set stores a string value with the given expiration. Negative
	// expiration means don't cache.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Get fetches a string value, returning found=false when the key is absent.
	Get(ctx context.Context, key string) (bool, string, error)
	// SetStruct marshals value to JSON and stores it with the given expiration.
	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// GetStruct fetches and unmarshals into target, returning found=false when absent.
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error
}

// Limiter records login attempts in a per-key sliding window.
type Limiter interface {
	// Observe prunes window entries older than now-window, records an
	// attempt at now (fractional seconds) and returns the count of attempts
	// that were already inside the window before this one. The backing entry
	// expires window+1s after the last attempt.
	Observe(ctx context.Context, key string, now float64, window time.Duration) (int64, error)
}

// Subscription is a live pub/sub channel subscription.
type Subscription interface {
	// Poll waits up to timeout for one message. ok=false with a nil error
	// means the poll timed out with nothing to deliver.
	Poll(ctx context.Context, timeout time.Duration) (message string, ok bool, err error)
	// Close unsubscribes and releases the subscription.
	Close() error
}

// PubSub publishes and subscribes to ephemeral broadcast channels. Only
// currently live subscribers receive a published message.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
