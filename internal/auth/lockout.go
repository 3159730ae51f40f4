package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oakpoint/schoolhub/internal/database/models"
	"gorm.io/gorm"
)

// LockoutGuard blocks logins after too many recent failures for the same
// identifier. The window is rolling: a locked account unlocks by itself once
// enough failures age out, with no stored lock state to clear. Storage errors
// during the check fail closed — the caller surfaces a server failure rather
// than letting the login through.
type LockoutGuard struct {
	db        *gorm.DB
	threshold int
	window    time.Duration
}

func NewLockoutGuard(db *gorm.DB, threshold int, window time.Duration) *LockoutGuard {
	return &LockoutGuard{db: db, threshold: threshold, window: window}
}

// Check reports whether the identifier is locked out and, if so, how long
// until the threshold-th most recent failure leaves the window.
func (g *LockoutGuard) Check(ctx context.Context, identifier string) (bool, time.Duration, error) {
	now := time.Now()
	since := now.Add(-g.window)

	var recent []models.LoginAttempt
	err := g.db.WithContext(ctx).
		Where("identifier = ? AND succeeded = ? AND created_at > ?", normalizeIdentifier(identifier), false, since).
		Order("created_at DESC").
		Limit(g.threshold).
		Find(&recent).Error
	if err != nil {
		return false, 0, fmt.Errorf("counting login attempts: %w", err)
	}

	if len(recent) < g.threshold {
		return false, 0, nil
	}

	// The lock clears when the oldest of the counted failures ages out.
	oldest := recent[len(recent)-1]
	retryAfter := oldest.CreatedAt.Add(g.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter, nil
}

// RecordAttempt appends one row. Called for every login attempt, including
// ones against unknown emails, so enumeration does not skip the counter.
func (g *LockoutGuard) RecordAttempt(ctx context.Context, identifier string, succeeded bool) error {
	attempt := models.LoginAttempt{
		Identifier: normalizeIdentifier(identifier),
		Succeeded:  succeeded,
	}
	if err := g.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("recording login attempt: %w", err)
	}
	return nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
