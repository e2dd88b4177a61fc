package server

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"uptask/internal/config"
	"uptask/internal/database"
	"uptask/internal/database/memstore"
	"uptask/internal/handlers"
	"uptask/internal/middleware"
	"uptask/internal/services"
	"uptask/pkg/auth"
)

// Storage is the set of repositories the services run against
type Storage struct {
	Users    services.UserRepository
	Projects services.ProjectRepository
	Tasks    services.TaskRepository
	Journal  services.OperationJournal
}

// MongoStorage returns repositories backed by MongoDB collections
func MongoStorage(mongodb *database.MongoDB) Storage {
	return Storage{
		Users:    services.NewUserStore(mongodb),
		Projects: services.NewProjectStore(mongodb),
		Tasks:    services.NewTaskStore(mongodb),
		Journal:  services.NewMongoOperationJournal(mongodb),
	}
}

// MemoryStorage returns repositories backed by a fresh in-process store
func MemoryStorage() Storage {
	store := memstore.New()
	return Storage{
		Users:    store.Users(),
		Projects: store.Projects(),
		Tasks:    store.Tasks(),
		Journal:  store.Journal(),
	}
}

// Options carries the optional collaborators of a Server
type Options struct {
	Mailer         services.Mailer
	LimiterStorage fiber.Storage
	RateLimits     *middleware.RateLimitConfig
	HealthChecks   map[string]handlers.Pinger
	Registry       *prometheus.Registry
}

// Server is a fully wired application
type Server struct {
	App        *fiber.App
	Rooms      *services.RoomRegistry
	Reconciler *services.Reconciler
	Metrics    *services.Metrics
	Registry   *prometheus.Registry
	JWT        *auth.LocalJWTAuth

	Accounts      *services.AccountService
	Projects      *services.ProjectService
	Collaboration *services.CollaborationService
	Tasks         *services.TaskService
	Realtime      *services.RealtimeService
}

// New wires services, handlers and routes on top of storage
func New(cfg *config.Config, storage Storage, opts Options) (*Server, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		generated, err := auth.GenerateOneTimeToken()
		if err != nil {
			return nil, err
		}
		secret = generated
		log.Println("⚠️  [AUTH] JWT_SECRET not set - using an ephemeral secret (development mode)")
	}
	jwtAuth, err := auth.NewLocalJWTAuth(secret, cfg.TokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session auth: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := services.NewMetrics(registry)

	mailer := opts.Mailer
	if mailer == nil {
		if cfg.SMTPConfigured() {
			mailer = services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender, cfg.FrontendURL, metrics)
		} else {
			mailer = services.NewLogMailer(cfg.FrontendURL)
		}
	}

	limits := opts.RateLimits
	if limits == nil {
		limits = middleware.LoadRateLimitConfig()
	}
	if opts.LimiterStorage != nil {
		limits.Storage = opts.LimiterStorage
	}

	rooms := services.NewRoomRegistry(metrics)
	ops := services.NewOperationRunner(storage.Journal, cfg.WriteRetryAttempts, metrics)
	sessions := services.NewSessionVerifier(jwtAuth, storage.Users, cfg.SessionCacheTTL)
	propagator := services.NewRealtimePropagator(rooms)

	s := &Server{
		Rooms:         rooms,
		Metrics:       metrics,
		Registry:      registry,
		JWT:           jwtAuth,
		Accounts:      services.NewAccountService(storage.Users, jwtAuth, mailer, sessions),
		Projects:      services.NewProjectService(storage.Projects, storage.Tasks, storage.Users, ops, rooms, metrics),
		Collaboration: services.NewCollaborationService(storage.Projects, storage.Users, rooms, metrics),
		Tasks:         services.NewTaskService(storage.Projects, storage.Tasks, storage.Users, ops, propagator, metrics),
		Realtime:      services.NewRealtimeService(storage.Projects, rooms, metrics),
		Reconciler:    services.NewReconciler(storage.Journal, storage.Projects, storage.Tasks, rooms, 0, metrics),
	}

	s.App = NewApp(Routes{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimits:     limits,
		Registry:       registry,
		RequestLogging: cfg.Environment != "test",
		Sessions:       sessions,
		Accounts:       handlers.NewAccountHandler(s.Accounts),
		Projects:       handlers.NewProjectHandler(s.Projects, s.Collaboration),
		Tasks:          handlers.NewTaskHandler(s.Tasks),
		Health:         handlers.NewHealthHandler(rooms, opts.HealthChecks),
		Realtime:       handlers.NewRealtimeWebSocketHandler(s.Realtime, rooms, metrics, limits.WebSocketFramesPerSecond, limits.WebSocketFrameBurst),
	})
	return s, nil
}

// Shutdown closes every realtime connection and stops the HTTP server
func (s *Server) Shutdown() error {
	s.Rooms.Close()
	return s.App.Shutdown()
}
