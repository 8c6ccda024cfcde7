package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what a Rule does when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// ErrNoStore is returned by Limiter.Allow when no Redis client is configured.
var ErrNoStore = errors.New("rate limit store not configured")

// Rule is a fixed-window budget for one named action.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
}

// Decision is the outcome of charging one request against a Rule.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter charges requests against Redis counters keyed rl:<rule>:<subject>.
type Limiter struct {
	rdb    *redis.Client
	bypass bool
}

// NewLimiter builds a limiter for the given APP_ENV. Local, test and stress
// environments are never throttled.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	l := &Limiter{rdb: rdb}
	switch env {
	case "", "test", "development", "stress":
		l.bypass = true
	}
	return l
}

// Allow counts one hit for subject under rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject string) (Decision, error) {
	if l.bypass {
		return Decision{Allowed: true, Remaining: rule.Limit}, nil
	}
	if l.rdb == nil {
		return Decision{}, ErrNoStore
	}

	key := fmt.Sprintf("rl:%s:%s", rule.Name, subject)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, rule.Window)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	used := int(incr.Val())
	d := Decision{Allowed: used <= rule.Limit, Remaining: rule.Limit - used}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl.Val()
		if d.RetryAfter <= 0 {
			d.RetryAfter = rule.Window
		}
	}
	return d, nil
}

// Handler enforces rule per authenticated user, or per client IP for
// anonymous requests.
func (l *Limiter) Handler(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid := c.Locals("userID"); uid != nil {
			subject = fmt.Sprintf("user:%v", uid)
		}

		d, err := l.Allow(c.UserContext(), rule, subject)
		if err != nil {
			if rule.Policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
				"rule", rule.Name, "path", c.Path(), "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
