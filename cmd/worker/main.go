package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/oakpoint/schoolhub/internal/auth"
	"github.com/oakpoint/schoolhub/internal/database"
	"github.com/oakpoint/schoolhub/internal/tasks"
	"github.com/oakpoint/schoolhub/pkg/config"
	"github.com/oakpoint/schoolhub/pkg/queue"
	"github.com/oakpoint/schoolhub/pkg/util"
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

	logger.Info("starting SchoolHub worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// The worker sends reset emails directly, so the reset flow here notifies
	// through the mailer rather than re-enqueueing.
	mailer := tasks.NewMailer(&cfg.SMTP)
	refreshStore := auth.NewRefreshTokenStore(db, cfg.JWT.RefreshTTL())
	resetFlow := auth.NewPasswordResetFlow(db, refreshStore, mailer, cfg.Auth.ResetTTL(), logger)

	attemptMaxAge := time.Duration(cfg.Worker.AttemptMaxAgeHrs) * time.Hour

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	// Create task handler
	handler := tasks.NewHandler(db, logger, mailer, refreshStore, resetFlow, attemptMaxAge)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Schedule the recurring credential purge
	if err := util.ValidateCronExpr(cfg.Worker.PurgeSchedule); err != nil {
		logger.Error("invalid purge schedule", "schedule", cfg.Worker.PurgeSchedule, "error", err)
		os.Exit(1)
	}

	scheduler := queue.NewScheduler(&cfg.Redis)
	if _, err := scheduler.Register(cfg.Worker.PurgeSchedule, tasks.NewCredentialsPurgeTask()); err != nil {
		logger.Error("failed to register purge schedule", "error", err)
		os.Exit(1)
	}

	if next, err := util.NextCronTime(cfg.Worker.PurgeSchedule, time.Now()); err == nil {
		logger.Info("credential purge scheduled", "schedule", cfg.Worker.PurgeSchedule, "next_run", next)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
