package server

import (
	"strings"
	"time"

	"quill/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
)

const defaultAllowedOrigins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"

var corsHeaders = strings.Join([]string{
	fiber.HeaderOrigin,
	fiber.HeaderContentType,
	fiber.HeaderAccept,
	fiber.HeaderAuthorization,
	fiber.HeaderUpgrade,
	fiber.HeaderConnection,
	fiber.HeaderSecWebSocketKey,
	fiber.HeaderSecWebSocketVersion,
}, ", ")

// Per-action budgets on top of the global per-IP limit. Auth fails closed;
// content and reactions fail open so a Redis outage never blocks them.
var (
	signupRule  = middleware.Rule{Name: "signup", Limit: 3, Window: 10 * time.Minute, Policy: middleware.FailClosed}
	loginRule   = middleware.Rule{Name: "login", Limit: 10, Window: 5 * time.Minute, Policy: middleware.FailClosed}
	postRule    = middleware.Rule{Name: "create_post", Limit: 5, Window: 5 * time.Minute}
	commentRule = middleware.Rule{Name: "create_comment", Limit: 3, Window: time.Minute}
	reactRule   = middleware.Rule{Name: "react", Limit: 120, Window: time.Minute}
)

// SetupMiddleware installs the global chain. Order matters: the request id
// and trace span exist before the context middleware copies them, and CORS
// runs before the global limiter so throttled responses keep CORS headers.
func (s *Server) SetupMiddleware(app *fiber.App) {
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultAllowedOrigins
	}

	chain := []fiber.Handler{
		recover.New(),
		requestid.New(),
		middleware.TracingMiddleware(),
		middleware.ContextMiddleware(),
	}
	if s.promMiddleware != nil {
		chain = append(chain, middleware.MetricsMiddleware(s.promMiddleware))
	}
	chain = append(chain,
		helmet.New(),
		middleware.StructuredLogger(),
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     corsHeaders,
			AllowCredentials: origins != "*",
			MaxAge:           int((24 * time.Hour).Seconds()),
		}),
		limiter.New(limiter.Config{
			Max:          100,
			Expiration:   time.Minute,
			Next:         func(c *fiber.Ctx) bool { return c.Method() == fiber.MethodOptions },
			KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}),
	)
	for _, h := range chain {
		app.Use(h)
	}
}

// SetupRoutes mounts probes, docs, the legacy reaction endpoints and the
// JSON API.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Reaction endpoints keep their historical paths, trailing slash included.
	reactions := app.Group("/post", s.AuthRequired(), s.limiter.Handler(reactRule))
	reactions.Post("/:id/like/", s.ToggleLike)
	reactions.Post("/:id/emoji/remove/", s.RemoveEmojiReaction)
	reactions.Post("/:id/emoji/", s.AddEmojiReaction)

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Quill Metrics Dashboard"}))
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/feature-flags", s.GetFeatureFlags)

	auth := api.Group("/auth")
	auth.Post("/signup", s.limiter.Handler(signupRule), s.Signup)
	auth.Post("/login", s.limiter.Handler(loginRule), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	api.Get("/posts", s.ListPosts)
	api.Get("/posts/:id", s.GetPost)
	api.Get("/posts/:id/comments", s.GetComments)

	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	member := api.Group("", s.AuthRequired())
	member.Post("/posts", s.limiter.Handler(postRule), s.CreatePost)
	member.Put("/posts/:id", s.UpdatePost)
	member.Delete("/posts/:id", s.DeletePost)
	member.Post("/posts/:id/comments", s.limiter.Handler(commentRule), s.CreateComment)
	member.Patch("/comments/:id/active", s.AdminRequired(), s.ToggleCommentActive)
	member.Delete("/comments/:id", s.DeleteComment)
	member.Get("/users/me", s.GetMe)
	member.Post("/users/:id/promote-admin", s.AdminRequired(), s.PromoteToAdmin)
}
