package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/oakpoint/schoolhub/internal/api"
	"github.com/oakpoint/schoolhub/internal/auth"
	"github.com/oakpoint/schoolhub/internal/database"
	"github.com/oakpoint/schoolhub/internal/tasks"
	"github.com/oakpoint/schoolhub/pkg/config"
	"github.com/oakpoint/schoolhub/pkg/crypto"
	"github.com/oakpoint/schoolhub/pkg/queue"
	"github.com/oakpoint/schoolhub/pkg/util"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting SchoolHub server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"multi_tenant", cfg.Server.MultiTenant,
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Initialize Asynq client for background job enqueuing
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
	}

	// Initialize auth services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL())
	lockoutGuard := auth.NewLockoutGuard(db, cfg.Auth.LockoutThreshold, cfg.Auth.LockoutWindow())
	refreshStore := auth.NewRefreshTokenStore(db, cfg.JWT.RefreshTTL())

	// Reset emails go through the worker when Redis is up, otherwise they are
	// sent inline by the SMTP mailer.
	var notifier auth.ResetNotifier
	if asynqClient != nil {
		notifier = tasks.NewQueueNotifier(asynqClient)
	} else {
		notifier = tasks.NewMailer(&cfg.SMTP)
	}

	resetFlow := auth.NewPasswordResetFlow(db, refreshStore, notifier, cfg.Auth.ResetTTL(), logger)
	authService := auth.NewService(db, jwtService, lockoutGuard, refreshStore, resetFlow, logger, cfg.Server.MultiTenant)

	// Initialize cipher for API key storage
	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create cipher", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - stored API keys will be unreadable after restart")
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:            db,
		Redis:         redisClient,
		Logger:        logger,
		JWTService:    jwtService,
		AuthService:   authService,
		Cipher:        cipher,
		RateLimitReqs: cfg.RateLimit.Requests,
		RateLimitSecs: cfg.RateLimit.WindowSeconds,
		MinPassword:   cfg.Auth.MinPasswordLength,
		RefreshTTL:    cfg.JWT.RefreshTTL(),
		SecureCookie:  !cfg.Server.IsDevelopment(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
