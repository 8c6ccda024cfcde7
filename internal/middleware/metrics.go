package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})

	// ActiveWebSockets is the number of currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_active_websockets",
		Help: "Number of active websocket connections",
	})

	// RequestDuration records handler latency by route template and status.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

var (
	promOnce sync.Once
	promInst *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide fiberprometheus instance for serviceName.
// Registration happens once; later calls return the same instance.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInst = fiberprometheus.New(serviceName)
	})
	return promInst
}

// MetricsMiddleware records request counters through fiberprometheus plus a
// per-route latency histogram keyed by the route template, not the raw path.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	promHandler := prom.Middleware
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := promHandler(c)

		route := c.Route().Path
		if route == "" {
			route = "unknown"
		}
		RequestDuration.WithLabelValues(
			c.Method(), route, strconv.Itoa(c.Response().StatusCode()),
		).Observe(time.Since(start).Seconds())
		return err
	}
}
