package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/khunphaen/sync-server/internal/api"
	"github.com/khunphaen/sync-server/internal/auth"
	"github.com/khunphaen/sync-server/internal/cache"
	"github.com/khunphaen/sync-server/internal/config"
	"github.com/khunphaen/sync-server/internal/db"
	"github.com/khunphaen/sync-server/internal/digest"
	"github.com/khunphaen/sync-server/internal/middleware"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/observability"
	"github.com/khunphaen/sync-server/internal/persistence"
	"github.com/khunphaen/sync-server/internal/rooms"
	"github.com/khunphaen/sync-server/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize OpenTelemetry
	otelCleanup, err := observability.InitOpenTelemetry("khunphaen-sync-server", "1.0.0")
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Initialize structured logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Initialize database
	database, err := db.New(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize database: %v", err)
	}
	logger.Info(context.Background(), "Connected to database: %s", cfg.DBName)

	// Initialize cache (Redis, optional)
	var redisCache *cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err = cache.New(cfg.RedisURL)
		if err != nil {
			logger.Fatal(context.Background(), "Failed to initialize cache: %v", err)
		}
	} else {
		logger.Info(context.Background(), "REDIS_URL not set, rate limiting uses in-memory buckets")
	}

	// Seed the initial admin account when configured and the system is empty
	seedInitialAdmin(context.Background(), cfg, database, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Snapshot write-back worker
	snapshotWriter := persistence.NewSnapshotWriter(database, logger)
	snapshotWriter.Start(workerCtx)

	// Room lifecycle
	system := rooms.NewSystemBus()
	manager := rooms.NewManager(database, snapshotWriter, logger,
		time.Duration(cfg.RoomIdleTimeoutSecs)*time.Second)
	manager.StartSweeper(workerCtx)

	// Digest scheduler
	scheduler := digest.NewScheduler(database, logger, cfg.DigestUTCOffsetHours)
	scheduler.Start(workerCtx)

	// HTTP surface
	var limiter *middleware.RateLimiter
	if redisCache != nil {
		limiter = middleware.NewRateLimiter(redisCache.GetClient())
	} else {
		limiter = middleware.NewRateLimiter(nil)
	}
	jwtManager := auth.NewJWTManager(cfg.JWTSecret)
	server := api.NewServer(cfg, logger, database, jwtManager, manager, system, limiter)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), "Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(context.Background(), "Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	gracefulShutdown(context.Background(), logger, httpServer, database, redisCache, system, snapshotWriter, stopWorkers, otelCleanup)

	logger.Info(context.Background(), "Application stopped.")
}

// seedInitialAdmin creates the first admin account from INITIAL_ADMIN_* when
// the users collection is empty.
func seedInitialAdmin(ctx context.Context, cfg *config.Config, database *db.Database, logger *utils.Logger) {
	if cfg.InitialAdminEmail == "" || cfg.InitialAdminPassword == "" {
		return
	}

	count, err := database.CountUsers(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to count users for admin seeding: %v", err)
		return
	}
	if count > 0 {
		return
	}

	hash, err := auth.HashPassword(cfg.InitialAdminPassword)
	if err != nil {
		logger.Error(ctx, "Failed to hash initial admin password: %v", err)
		return
	}

	user := &models.User{
		UserID:       uuid.NewString(),
		Email:        cfg.InitialAdminEmail,
		Role:         "admin",
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := database.CreateUser(ctx, user); err != nil {
		logger.Error(ctx, "Failed to seed initial admin: %v", err)
		return
	}
	profile := &models.UserProfile{
		ProfileID: uuid.NewString(),
		UserID:    user.UserID,
		Nickname:  cfg.InitialAdminNickname,
	}
	if err := database.CreateProfile(ctx, profile); err != nil {
		logger.Error(ctx, "Failed to seed initial admin profile: %v", err)
	}

	logger.Info(ctx, "Initial admin account seeded: %s", cfg.InitialAdminEmail)
}

// gracefulShutdown stops the components in dependency order.
func gracefulShutdown(ctx context.Context, logger *utils.Logger, server *http.Server, database *db.Database, redisCache *cache.Cache, system *rooms.SystemBus, snapshotWriter *persistence.SnapshotWriter, stopWorkers context.CancelFunc, otelCleanup func(context.Context) error) {
	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 1. Tell every websocket session to close
	system.Shutdown()

	// 2. Shut down HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error: %v", err)
	} else {
		logger.Info(ctx, "HTTP server stopped.")
	}

	// 3. Stop background workers (sweeper, digest scheduler)
	stopWorkers()

	// 4. Stop the snapshot writer (flushes pending documents)
	snapshotWriter.Stop()
	logger.Info(ctx, "Snapshot writer stopped.")

	// 5. Close Database connection
	if err := database.Close(); err != nil {
		logger.Error(ctx, "Database close error: %v", err)
	} else {
		logger.Info(ctx, "Database connection closed.")
	}

	// 6. Close Redis connection
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			logger.Error(ctx, "Redis cache close error: %v", err)
		} else {
			logger.Info(ctx, "Redis cache connection closed.")
		}
	}

	// 7. Shutdown OpenTelemetry
	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		} else {
			logger.Info(ctx, "OpenTelemetry shut down.")
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
