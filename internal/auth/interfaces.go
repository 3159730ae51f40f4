package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/oakpoint/schoolhub/internal/database/models"
)

// Authenticator defines the interface for the session operations.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	Refresh(ctx context.Context, rawToken string) (*AuthResponse, error)
	Logout(ctx context.Context, rawToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, rawToken, newPassword string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for access-token operations.
type TokenService interface {
	GenerateToken(userID, orgID uuid.UUID, email, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
