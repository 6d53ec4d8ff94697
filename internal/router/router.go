package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	JudgeHandler          *handler.JudgeHandler
	TaskSubmissionHandler *handler.TaskSubmissionHandler
	AutoSubmitHandler     *handler.AutoSubmitHandler
	NotificationHandler   *handler.NotificationHandler
	ActivityHandler       *handler.ActivityHandler
	JWTMiddleware         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.JudgeHandler != nil {
		judge := app.Group("/api/v2/judge", jwtMiddleware)
		deps.JudgeHandler.Register(judge, middleware.RateLimit("judge-run", cfg.RunRateLimit, time.Minute))
	}

	if deps.TaskSubmissionHandler != nil {
		tasks := app.Group("/api/v2/tasks", jwtMiddleware, middleware.RequireRole(middleware.RoleStudent))
		deps.TaskSubmissionHandler.Register(tasks)
	}

	admin := app.Group("/api/v2/admin", jwtMiddleware, middleware.RequireRole(middleware.RoleAdmin))
	if deps.AutoSubmitHandler != nil {
		deps.AutoSubmitHandler.Register(admin.Group("/auto-submit"))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(admin.Group("/activity"))
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v2/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}
}
