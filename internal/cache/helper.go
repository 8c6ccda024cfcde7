package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quill/internal/observability"

	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(s, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first; on a miss (or any cache failure) it calls fetch,
// which must populate dest, then stores dest with ttl on a best-effort basis.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	name := metricName(key)
	found, err := GetJSON(ctx, key, dest)
	if err == nil && found {
		observability.CacheLookups.WithLabelValues(name, "hit").Inc()
		return nil
	}
	observability.CacheLookups.WithLabelValues(name, "miss").Inc()

	if err := fetch(); err != nil {
		return err
	}

	_ = SetJSON(ctx, key, dest, ttl)
	return nil
}

// metricName collapses a key to its prefix ("user:12:posts" -> "user:posts")
// to keep metric cardinality bounded.
func metricName(key string) string {
	out := make([]byte, 0, len(key))
	skipping := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch >= '0' && ch <= '9' {
			skipping = true
			continue
		}
		if skipping && ch == ':' {
			skipping = false
			continue
		}
		skipping = false
		out = append(out, ch)
	}
	if n := len(out); n > 0 && out[n-1] == ':' {
		out = out[:n-1]
	}
	return string(out)
}
