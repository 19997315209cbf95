// Package counter implements the fixed-window admission counters: a shared
// Redis backend, an in-process fallback backend, and the manager that routes
// between them based on Redis health.
package counter

import (
	"context"
	"time"
)

// Result is the outcome of a single increment: the post-increment count in
// the key's current window and the seconds left until the window resets
// (rounded up).
type Result struct {
	Count int64
	TTL   int
}

// Backend counts one unit of consumption per call. Implementations must be
// atomic per key: two concurrent increments on the same key must never
// observe the same pre-increment count.
type Backend interface {
	Increment(ctx context.Context, key string, window time.Duration) (Result, error)
}

// Normalize maps a caller-supplied subject to its store key.
func Normalize(key string) string {
	return "rl:" + key
}
