// Package server contains the HTTP handlers for the studyhub API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/middleware"
	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"
	"studyhub/internal/service"
	"studyhub/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config          *config.Config
	db              *gorm.DB
	redis           *redis.Client
	app             *fiber.App
	promMiddleware  *fiberprometheus.FiberPrometheus
	stager          *storage.ResourceStager
	groupService    *service.GroupService
	forumService    *service.ForumService
	reactionService *service.ReactionService
}

// NewServer connects to the database and Redis and builds a Server on top.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching and rate limiting then degrade to no-ops.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	stager := storage.NewResourceStager(cfg.ResourceRoot, cfg.TempUploadDir)

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	forumRepo := repository.NewForumRepository(db)
	lookup := service.NewGroupLookup(groupRepo, time.Duration(cfg.GroupCacheTTLSeconds)*time.Second)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("studyhub-api"),
		stager:         stager,
	}
	s.groupService = service.NewGroupService(
		groupRepo,
		userRepo,
		repository.NewEntityGraph(db, stager),
		stager,
		lookup,
		service.GroupServiceConfig{
			CodeAttempts: cfg.GroupCodeMaxAttempts,
			MaxResources: cfg.MaxResourcesPerGroup,
		},
	)
	s.forumService = service.NewForumService(db, forumRepo, groupRepo, lookup)
	s.reactionService = service.NewReactionService(db, forumRepo)

	return s, nil
}

// App builds the Fiber application with middleware and routes attached.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "StudyHub API",
		BodyLimit: s.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// bodyLimit caps a whole request, so MAX_UPLOAD_SIZE_MB bounds the sum of
// the files attached to one group.
func (s *Server) bodyLimit() int {
	mb := s.config.MaxUploadSizeMB
	if mb <= 0 {
		mb = 50
	}
	return mb * 1024 * 1024
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Propagates request and trace ids into the user context for slog.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.IsProduction()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api", middleware.AuthRequired(s.config))

	groups := api.Group("/groups")
	groups.Get("/", s.ListGroups)
	groups.Post("/", middleware.RateLimit(s.redis, 5, 10*time.Minute, "create_group"), s.CreateGroup)
	// Specific /:groupCode/... routes before the generic /:groupCode
	groups.Post("/:groupCode/join", s.JoinGroup)
	groups.Get("/:groupCode/forum", s.GetGroupForum)
	groups.Post("/:groupCode/threads", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_thread"), s.CreateThread)
	groups.Patch("/:groupCode/threads/:threadId/pin", s.TogglePin)
	groups.Patch("/:groupCode/threads/:threadId/lock", s.ToggleLock)
	groups.Get("/:groupCode", s.GetGroup)

	threads := api.Group("/threads")
	threads.Post("/:threadId/replies", middleware.RateLimit(
		s.redis, 30, time.Minute, "create_reply"), s.CreateReply)
	threads.Get("/:threadId", s.GetThread)

	replies := api.Group("/replies")
	replies.Post("/:replyId/like", middleware.RateLimit(
		s.redis, 60, time.Minute, "react"), s.LikeReply)
	replies.Post("/:replyId/dislike", middleware.RateLimit(
		s.redis, 60, time.Minute, "react"), s.DislikeReply)
	replies.Get("/:replyId/reaction", s.GetMyReaction)
	replies.Put("/:replyId", s.EditReply)
	replies.Delete("/:replyId", s.DeleteReply)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database and Redis answer a ping.
// Redis is optional: a missing client is reported but does not fail the check.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	s.app = s.App()
	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			observability.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	observability.Logger.Info("server shutdown complete")
	return nil
}
