package counter

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed window.lua
var windowLua string

var windowScript = redis.NewScript(windowLua)

// RedisBackend is the shared counter. The increment-then-expire pair runs
// as one server-side script, so concurrent callers across replicas always
// observe distinct counts and a key is never created without a TTL.
//
// Failures are returned as-is and never retried here; the manager decides
// what to do with an unavailable backend.
type RedisBackend struct {
	client redis.UniversalClient
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Increment(ctx context.Context, key string, window time.Duration) (Result, error) {
	seconds := ceilSeconds(window)

	raw, err := windowScript.Run(ctx, r.client, []string{key}, seconds).Result()
	if err != nil {
		return Result{}, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, errors.New("counter: unexpected script reply")
	}
	count, ok1 := values[0].(int64)
	ttl, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return Result{}, errors.New("counter: unexpected script reply")
	}

	return Result{Count: count, TTL: int(ttl)}, nil
}

// Ping probes the connection; the manager's watcher uses it to drive the
// health flag.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Size reports the number of keys in the store, for the health endpoint.
func (r *RedisBackend) Size(ctx context.Context) (int64, error) {
	return r.client.DBSize(ctx).Result()
}
