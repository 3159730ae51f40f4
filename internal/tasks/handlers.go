package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/oakpoint/schoolhub/internal/auth"
	"github.com/oakpoint/schoolhub/internal/database/models"
	"gorm.io/gorm"
)

type Handler struct {
	db            *gorm.DB
	logger        *slog.Logger
	mailer        *Mailer
	refreshStore  *auth.RefreshTokenStore
	resetFlow     *auth.PasswordResetFlow
	attemptMaxAge time.Duration
}

func NewHandler(db *gorm.DB, logger *slog.Logger, mailer *Mailer, refreshStore *auth.RefreshTokenStore, resetFlow *auth.PasswordResetFlow, attemptMaxAge time.Duration) *Handler {
	return &Handler{
		db:            db,
		logger:        logger,
		mailer:        mailer,
		refreshStore:  refreshStore,
		resetFlow:     resetFlow,
		attemptMaxAge: attemptMaxAge,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeResetEmail, h.HandleResetEmail)
	mux.HandleFunc(TypeCredentialsPurge, h.HandleCredentialsPurge)
}

func (h *Handler) HandleResetEmail(ctx context.Context, t *asynq.Task) error {
	var payload ResetEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if !h.mailer.Enabled() {
		h.logger.Info("smtp not configured, reset token logged instead",
			"email", payload.Email,
			"token", payload.RawToken,
		)
		return nil
	}

	if err := h.mailer.SendPasswordReset(ctx, payload.Email, payload.Name, payload.RawToken); err != nil {
		h.logger.Error("failed to send reset email", "email", payload.Email, "error", err)
		return err
	}

	h.logger.Info("reset email sent", "email", payload.Email)
	return nil
}

// HandleCredentialsPurge deletes expired refresh tokens, expired reset
// tokens, and stale login attempts. Runs on the configured cron schedule.
func (h *Handler) HandleCredentialsPurge(ctx context.Context, t *asynq.Task) error {
	now := time.Now()

	refreshPurged, err := h.refreshStore.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}

	resetPurged, err := h.resetFlow.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}

	// Attempts only matter inside the lockout window; keep a generous
	// history for audit, then drop.
	res := h.db.WithContext(ctx).
		Where("created_at < ?", now.Add(-h.attemptMaxAge)).
		Delete(&models.LoginAttempt{})
	if res.Error != nil {
		return fmt.Errorf("purging login attempts: %w", res.Error)
	}

	h.logger.Info("credentials purge complete",
		"refresh_tokens", refreshPurged,
		"reset_tokens", resetPurged,
		"login_attempts", res.RowsAffected,
	)
	return nil
}
