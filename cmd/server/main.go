package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"uptask/internal/config"
	"uptask/internal/database"
	"uptask/internal/handlers"
	"uptask/internal/jobs"
	"uptask/internal/logging"
	"uptask/internal/middleware"
	"uptask/internal/server"
	"uptask/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	logging.Init(cfg.Environment)

	log.Println("🚀 Starting UpTask Server...")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	ctx := context.Background()
	healthChecks := map[string]handlers.Pinger{}

	// Storage
	var storage server.Storage
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		defer mongoDB.Close(context.Background())

		if err := mongoDB.Initialize(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		storage = server.MongoStorage(mongoDB)
		healthChecks["mongodb"] = mongoDB
		log.Printf("✅ MongoDB connected (database: %s)", mongoDB.Name())
	} else {
		storage = server.MemoryStorage()
		log.Println("⚠️  MONGODB_URI not set - using in-process storage (development mode, data is lost on restart)")
	}

	// Rate limiting, optionally shared through Redis
	rateLimits := middleware.LoadRateLimitConfig()
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis: %v (rate limit counters stay in memory)", err)
		} else {
			defer redisService.Close()
			rateLimits.Storage = redisService.LimiterStorage("uptask:ratelimit:")
			healthChecks["redis"] = redisService
			log.Println("✅ Redis connected - rate limit counters shared")
		}
	}
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Account=%d/15min, Auth=%d/min, WS=%d/min",
		rateLimits.GlobalAPIMax,
		rateLimits.AccountMax,
		rateLimits.AuthenticatedMax,
		rateLimits.WebSocketMax,
	)

	if cfg.SMTPConfigured() {
		log.Printf("✅ [MAIL] SMTP mailer configured (%s:%d)", cfg.SMTPHost, cfg.SMTPPort)
	} else {
		log.Println("⚠️  [MAIL] SMTP_HOST not set - confirmation and reset links are logged instead of sent")
	}

	srv, err := server.New(cfg, storage, server.Options{
		RateLimits:   rateLimits,
		HealthChecks: healthChecks,
	})
	if err != nil {
		log.Fatalf("❌ Failed to build server: %v", err)
	}

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("reconcile_pending_operations", jobs.NewReconcileJob(srv.Reconciler, cfg.ReconcileInterval)); err != nil {
		log.Fatalf("❌ Failed to register reconcile job: %v", err)
	}
	jobScheduler.Start()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		// One last pass so pending writes do not wait for the next boot
		reconcileCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := srv.Reconciler.RunOnce(reconcileCtx); err != nil {
			log.Printf("⚠️ Final reconciliation failed: %v", err)
		}
		cancel()

		if err := srv.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := srv.App.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
