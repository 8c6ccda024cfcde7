// Package server exposes the blog, its reactions and the realtime feed over
// HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"

	_ "quill/docs" // swagger docs
	"quill/internal/bootstrap"
	"quill/internal/config"
	"quill/internal/featureflags"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/repository"
	"quill/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server owns the HTTP app and everything its handlers need.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	stopWiring     context.CancelFunc

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
	limiter      *middleware.Limiter

	userService     *service.UserService
	postService     *service.PostService
	commentService  *service.CommentService
	reactionService *service.ReactionService
}

// NewServer connects to the database and Redis described by cfg and builds a
// Server on top of them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps builds a Server on connections the caller already owns.
// rdb may be nil; realtime events then stay on this instance and logout,
// tickets and per-action rate limits are unavailable.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          rdb,
		promMiddleware: middleware.InitMetrics("quill-api"),
		notifier:       notifications.NewNotifier(rdb),
		hub:            notifications.NewHub(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		limiter:        middleware.NewLimiter(rdb, cfg.Env),
	}

	users := repository.NewUserRepository(db)
	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)
	publisher := notifications.NewPublisher(s.hub, s.notifier)

	s.userService = service.NewUserService(users)
	isAdmin := service.AdminChecker(s.userService.IsAdmin)
	s.reactionService = service.NewReactionService(repository.NewReactionRepository(db), publisher, s.featureFlags)
	s.postService = service.NewPostService(posts, comments, s.reactionService, isAdmin, cfg.PostsPageSize)
	s.commentService = service.NewCommentService(comments, posts, isAdmin)

	return s, nil
}

// App builds a Fiber app with the middleware chain and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Quill API",
		ErrorHandler: s.handleError,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// handleError renders errors that escaped a handler. Fiber errors keep their
// status; anything else is logged and hidden behind a 500.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// Start subscribes the hub to cross-instance events and serves until
// Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWiring = cancel

	if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
		// Clients on this instance still get events published here.
		middleware.Logger.Error("realtime fan-out unavailable", "hub", s.hub.Name(), "error", err)
	}

	s.app = s.App()
	middleware.Logger.Info("Server starting", "port", s.config.Port, "env", s.config.Env)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, disconnects websocket clients and
// closes the database and Redis. Every step runs; their errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopWiring != nil {
		s.stopWiring()
	}

	var errs []error
	if s.app != nil {
		errs = append(errs, wrapErr("http server", s.app.ShutdownWithContext(ctx)))
	}
	errs = append(errs, wrapErr("websocket hub", s.hub.Shutdown(ctx)))
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, wrapErr("database", sqlDB.Close()))
	}
	if s.redis != nil {
		errs = append(errs, wrapErr("redis", s.redis.Close()))
	}

	err := errors.Join(errs...)
	if err != nil {
		middleware.Logger.Error("shutdown finished with errors", "error", err)
		return err
	}
	middleware.Logger.Info("Server shutdown complete")
	return nil
}

func wrapErr(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", what, err)
}
