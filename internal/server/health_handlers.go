package server

import (
	"context"
	"time"

	"quill/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 5 * time.Second

// LivenessCheck handles GET /health/live.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

// ReadinessCheck handles GET /health/ready. A missing Redis is reported as
// unavailable and tolerated; a Redis that errors is not.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := map[string]string{"database": "healthy", "redis": "unavailable"}
	ready := true

	if err := s.pingDatabase(ctx); err != nil {
		middleware.Logger.WarnContext(ctx, "readiness: database ping failed", "error", err)
		checks["database"] = "unhealthy"
		ready = false
	}
	if s.redis != nil {
		checks["redis"] = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "readiness: redis ping failed", "error", err)
			checks["redis"] = "unhealthy"
			ready = false
		}
	}

	status, overall := fiber.StatusOK, "healthy"
	if !ready {
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":            overall,
		"checks":            checks,
		"websocket_clients": s.hub.ClientCount(),
		"time":              time.Now(),
	})
}

func (s *Server) pingDatabase(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
