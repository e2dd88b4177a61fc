package server

import (
	"log"
	"strings"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"uptask/internal/handlers"
	"uptask/internal/middleware"
	"uptask/internal/services"
)

// Routes bundles everything the HTTP surface needs
type Routes struct {
	AllowedOrigins string
	RateLimits     *middleware.RateLimitConfig
	Registry       *prometheus.Registry
	RequestLogging bool

	Sessions *services.SessionVerifier
	Accounts *handlers.AccountHandler
	Projects *handlers.ProjectHandler
	Tasks    *handlers.TaskHandler
	Health   *handlers.HealthHandler
	Realtime *handlers.RealtimeWebSocketHandler
}

// NewApp builds the fiber application with middleware and all routes registered
func NewApp(r Routes) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "UpTask",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	if r.RequestLogging {
		app.Use(logger.New())
	}

	if r.Registry != nil {
		prom := fiberprometheus.NewWithRegistry(r.Registry, "uptask", "http", "", nil)
		prom.RegisterAt(app, "/metrics")
		app.Use(prom.Middleware)
	}

	origins := r.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization," + handlers.HeaderConnectionID,
		AllowCredentials: origins != "*",
	}))

	limits := r.RateLimits
	if limits == nil {
		limits = middleware.DefaultRateLimitConfig()
	}
	app.Use("/api", middleware.GlobalAPIRateLimiter(limits))

	app.Get("/health", r.Health.Handle)

	auth := middleware.SessionAuthMiddleware(r.Sessions)
	mutations := middleware.AuthenticatedRateLimiter(limits)

	// Accounts
	users := app.Group("/api/users")
	accountLimit := middleware.AccountRateLimiter(limits)
	users.Post("/", accountLimit, r.Accounts.Register)
	users.Post("/login", accountLimit, r.Accounts.Login)
	users.Get("/confirm/:token", r.Accounts.Confirm)
	users.Post("/forgot-password", accountLimit, r.Accounts.ForgotPassword)
	users.Get("/forgot-password/:token", r.Accounts.CheckResetToken)
	users.Post("/forgot-password/:token", accountLimit, r.Accounts.ResetPassword)
	users.Get("/profile", auth, r.Accounts.Profile)

	// Projects and collaborators
	projects := app.Group("/api/projects", auth, mutations)
	projects.Get("/", r.Projects.List)
	projects.Post("/", r.Projects.Create)
	projects.Post("/collaborators/search", r.Projects.SearchCollaborator)
	projects.Get("/:id", r.Projects.Get)
	projects.Put("/:id", r.Projects.Update)
	projects.Delete("/:id", r.Projects.Delete)
	projects.Post("/:id/collaborators", r.Projects.AddCollaborator)
	projects.Delete("/:id/collaborators/:userId", r.Projects.RemoveCollaborator)

	// Tasks
	tasks := app.Group("/api/tasks", auth, mutations)
	tasks.Post("/", r.Tasks.Create)
	tasks.Get("/:id", r.Tasks.Get)
	tasks.Put("/:id", r.Tasks.Update)
	tasks.Delete("/:id", r.Tasks.Delete)
	tasks.Post("/:id/state", r.Tasks.ToggleState)

	// Realtime
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsConfig := websocket.Config{}
	if origins != "*" {
		wsConfig.Origins = strings.Split(origins, ",")
	}
	app.Use("/ws", middleware.WebSocketRateLimiter(limits))
	app.Get("/ws", auth, websocket.New(r.Realtime.Handle, wsConfig))

	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", origins)
	return app
}
