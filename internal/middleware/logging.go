// Package middleware provides request-scoped logging, metrics, tracing and rate limiting.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Tools replace it at startup.
var Logger *slog.Logger

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), slog.LevelInfo, os.Stdout)
}

// requestFields are stamped onto every record logged with a request context.
type requestFields struct {
	requestID string
	traceID   string
	userID    uint
}

type requestFieldsKey struct{}

func fieldsFrom(ctx context.Context) requestFields {
	f, _ := ctx.Value(requestFieldsKey{}).(requestFields)
	return f
}

// WithRequestID returns ctx tagged with the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = id
	return context.WithValue(ctx, requestFieldsKey{}, f)
}

// WithTraceID returns ctx tagged with the trace id.
func WithTraceID(ctx context.Context, id string) context.Context {
	f := fieldsFrom(ctx)
	f.traceID = id
	return context.WithValue(ctx, requestFieldsKey{}, f)
}

// WithUserID returns ctx tagged with the authenticated user.
func WithUserID(ctx context.Context, id uint) context.Context {
	f := fieldsFrom(ctx)
	f.userID = id
	return context.WithValue(ctx, requestFieldsKey{}, f)
}

// UserIDFrom returns the user stored by WithUserID, or 0.
func UserIDFrom(ctx context.Context) uint {
	return fieldsFrom(ctx).userID
}

type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	f := fieldsFrom(ctx)
	if f.requestID != "" {
		r.AddAttrs(slog.String("request_id", f.requestID))
	}
	if f.traceID != "" {
		r.AddAttrs(slog.String("trace_id", f.traceID))
	}
	if f.userID != 0 {
		r.AddAttrs(slog.Uint64("user_id", uint64(f.userID)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

// NewLogger writes JSON in production and text everywhere else.
func NewLogger(env string, level slog.Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" || env == "prod" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(requestHandler{h})
}

// ContextMiddleware copies the request id, trace id and any already
// authenticated user from locals into the user context.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = WithRequestID(ctx, rid)
		}
		if tid, ok := c.Locals("traceID").(string); ok {
			ctx = WithTraceID(ctx, tid)
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			ctx = WithUserID(ctx, uid)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one line per request once the handler chain has run.
// Probe traffic under /health is only logged when it fails.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}
		if strings.HasPrefix(c.Path(), "/health") && status < fiber.StatusBadRequest {
			return err
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", c.Route().Path),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		level := slog.LevelInfo
		msg := "request processed"
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			level, msg = slog.LevelError, "request failed"
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		Logger.LogAttrs(c.UserContext(), level, msg, attrs...)
		return err
	}
}
