package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oakpoint/schoolhub/internal/database/models"
	"github.com/oakpoint/schoolhub/pkg/crypto"
	"gorm.io/gorm"
)

const refreshTokenBytes = 32

// RefreshTokenStore issues, rotates, and revokes the opaque long-lived
// tokens. Only hashes are persisted; the raw value exists in the response
// cookie and nowhere else.
type RefreshTokenStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewRefreshTokenStore(db *gorm.DB, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, ttl: ttl}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new chain link for the user and returns the raw token.
func (s *RefreshTokenStore) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.issueTx(s.db.WithContext(ctx), userID)
}

func (s *RefreshTokenStore) issueTx(tx *gorm.DB, userID uuid.UUID) (string, error) {
	raw, err := crypto.GenerateToken(refreshTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}

	record := models.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := tx.Create(&record).Error; err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}

	return raw, nil
}

// Rotate consumes one chain link and issues the next for the same user, as
// one transaction: either the old link is revoked and the new one exists, or
// neither change is visible. The returned user row is current, so a role
// change or deactivation takes effect within one refresh cycle.
//
// Failure kinds are distinct: ErrInvalidToken for unknown or already-revoked
// tokens, ErrExpiredToken for expired ones, ErrInactiveUser and
// ErrInactiveOrganization when the account state no longer permits a session
// (in which case the presented token stays untouched).
func (s *RefreshTokenStore) Rotate(ctx context.Context, raw string) (string, *models.User, error) {
	var newRaw string
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(raw)).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("looking up refresh token: %w", err)
		}

		now := time.Now()
		switch token.State(now) {
		case models.TokenRevoked:
			return ErrInvalidToken
		case models.TokenExpired:
			return ErrExpiredToken
		}

		if err := tx.Preload("Organization").First(&user, token.UserID).Error; err != nil {
			return fmt.Errorf("loading user for rotation: %w", err)
		}
		if !user.IsActive {
			return ErrInactiveUser
		}
		if user.Organization == nil || !user.Organization.IsActive {
			return ErrInactiveOrganization
		}

		// Guard against concurrent rotation of the same link: only the
		// request that flips revoked_at proceeds.
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", token.ID).
			Update("revoked_at", now)
		if res.Error != nil {
			return fmt.Errorf("revoking refresh token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		var err error
		newRaw, err = s.issueTx(tx, token.UserID)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	return newRaw, &user, nil
}

// Revoke marks the link for the given raw token revoked, if it is live.
// Unknown tokens are a no-op, which keeps logout idempotent.
func (s *RefreshTokenStore) Revoke(ctx context.Context, raw string) error {
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(raw)).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeAll revokes every live link for the user. Used on password change,
// password reset, and account deactivation.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.revokeAllTx(s.db.WithContext(ctx), userID)
}

func (s *RefreshTokenStore) revokeAllTx(tx *gorm.DB, userID uuid.UUID) error {
	now := time.Now()
	err := tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Update("revoked_at", now).Error
	if err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

// PurgeExpired deletes links that expired before the cutoff. Run from the
// worker's maintenance job; live rows are never touched.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging refresh tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
