package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimiter_BypassedEnvironments(t *testing.T) {
	rule := Rule{Name: "r", Limit: 1, Window: time.Minute}
	for _, env := range []string{"", "test", "development", "stress"} {
		t.Run("env="+env, func(t *testing.T) {
			d, err := NewLimiter(nil, env).Allow(context.Background(), rule, "1")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		})
	}
}

func TestLimiter_NoStore(t *testing.T) {
	_, err := NewLimiter(nil, "production").Allow(context.Background(), Rule{Name: "r", Limit: 1, Window: time.Minute}, "1")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestLimiter_FixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")
	rule := Rule{Name: "login", Limit: 2, Window: time.Minute}
	ctx := context.Background()

	d, err := l.Allow(ctx, rule, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1}, d)

	d, err = l.Allow(ctx, rule, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 0}, d)

	d, err = l.Allow(ctx, rule, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	// Other subjects have their own counter.
	d, err = l.Allow(ctx, rule, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.True(t, mr.Exists("rl:login:ip:1.2.3.4"))
	mr.FastForward(2 * time.Minute)

	d, err = l.Allow(ctx, rule, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_Handler(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")

	app := fiber.New()
	app.Post("/limited", l.Handler(Rule{Name: "limited", Limit: 1, Window: time.Minute}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(httptest.NewRequest("POST", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestLimiter_HandlerStoreDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()
	l := NewLimiter(rdb, "production")

	tests := []struct {
		name   string
		policy FailPolicy
		want   int
	}{
		{"fail open", FailOpen, fiber.StatusNoContent},
		{"fail closed", FailClosed, fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			rule := Rule{Name: "x", Limit: 1, Window: time.Minute, Policy: tt.policy}
			app.Post("/x", l.Handler(rule), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusNoContent)
			})
			resp, err := app.Test(httptest.NewRequest("POST", "/x", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
