package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oakpoint/schoolhub/internal/database/models"
	"github.com/oakpoint/schoolhub/pkg/crypto"
	"gorm.io/gorm"
)

const resetTokenBytes = 32

// ResetNotifier delivers the raw reset token to the user out-of-band.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, name, rawToken string) error
}

// PasswordResetFlow issues and consumes the one-time reset tokens.
type PasswordResetFlow struct {
	db       *gorm.DB
	refresh  *RefreshTokenStore
	notifier ResetNotifier
	ttl      time.Duration
	logger   *slog.Logger
}

func NewPasswordResetFlow(db *gorm.DB, refresh *RefreshTokenStore, notifier ResetNotifier, ttl time.Duration, logger *slog.Logger) *PasswordResetFlow {
	return &PasswordResetFlow{
		db:       db,
		refresh:  refresh,
		notifier: notifier,
		ttl:      ttl,
		logger:   logger,
	}
}

// Request issues a reset token for the email's user, superseding any prior
// unused tokens. A missing email is not an error: the caller answers with
// the same generic success either way, so nothing here may leak existence.
func (f *PasswordResetFlow) Request(ctx context.Context, email string) error {
	var user models.User
	err := f.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("looking up user for reset: %w", err)
	}

	raw, err := crypto.GenerateToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}

	err = f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Supersede: at most one honored token per user at a time.
		now := time.Now()
		err := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error
		if err != nil {
			return fmt.Errorf("superseding reset tokens: %w", err)
		}

		token := models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: hashToken(raw),
			ExpiresAt: now.Add(f.ttl),
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		return err
	}

	// Delivery failure is logged, not surfaced: a distinct response here
	// would tell the caller the email exists.
	if err := f.notifier.SendPasswordReset(ctx, user.Email, user.Name, raw); err != nil {
		f.logger.Error("failed to dispatch password reset", "user_id", user.ID, "error", err)
	}

	return nil
}

// Complete consumes a reset token and sets the new password. The password
// update, token consumption, and session revocation happen as one
// transaction. A used token fails identically to one that never existed.
func (f *PasswordResetFlow) Complete(ctx context.Context, rawToken, newPassword string) error {
	var token models.PasswordResetToken
	err := f.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL", hashToken(rawToken)).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("looking up reset token: %w", err)
	}

	now := time.Now()
	if token.State(now) == models.ResetExpired {
		return ErrExpiredResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing new password: %w", err)
	}

	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.User{}).
			Where("id = ?", token.UserID).
			Update("password_hash", hash).Error
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}

		res := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if res.Error != nil {
			return fmt.Errorf("consuming reset token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with a concurrent reset using the same token.
			return ErrInvalidResetToken
		}

		// Force re-login everywhere.
		return f.refresh.revokeAllTx(tx, token.UserID)
	})
}

// PurgeExpired deletes reset tokens whose expiry is past the cutoff.
func (f *PasswordResetFlow) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := f.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging reset tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
