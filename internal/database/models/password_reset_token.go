package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetTokenState mirrors TokenState for the one-time reset tokens.
type ResetTokenState string

const (
	ResetIssued   ResetTokenState = "issued"
	ResetConsumed ResetTokenState = "consumed"
	ResetExpired  ResetTokenState = "expired"
)

// PasswordResetToken is a short-lived, one-time credential for the reset
// flow. Issuing a new token for a user marks all prior unused ones used
// (superseded), so at most one token per user is ever honored.
type PasswordResetToken struct {
	Base
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`

	// Relationships
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

func (t *PasswordResetToken) State(now time.Time) ResetTokenState {
	if t.UsedAt != nil {
		return ResetConsumed
	}
	if now.After(t.ExpiresAt) {
		return ResetExpired
	}
	return ResetIssued
}
