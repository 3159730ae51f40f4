package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenState is the explicit lifecycle state derived from the nullable
// timestamp columns, so transition logic lives in one place.
type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenRevoked TokenState = "revoked"
	TokenExpired TokenState = "expired"
)

// RefreshToken is one link in a session's rotation chain. Only the hash of
// the opaque value is stored; the raw value is handed to the client once.
type RefreshToken struct {
	Base
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// Relationships
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// State derives the lifecycle state at the given instant. Revocation wins
// over expiry: a link consumed by rotation stays revoked even after it
// would have expired.
func (t *RefreshToken) State(now time.Time) TokenState {
	if t.RevokedAt != nil {
		return TokenRevoked
	}
	if now.After(t.ExpiresAt) {
		return TokenExpired
	}
	return TokenActive
}
