package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/oakpoint/schoolhub/internal/database/models"
	"gorm.io/gorm"
)

// Service composes the credential components into the public session
// operations: login, refresh, register, logout, and the reset flow.
type Service struct {
	db          *gorm.DB
	jwt         *JWTService
	lockout     *LockoutGuard
	refresh     *RefreshTokenStore
	reset       *PasswordResetFlow
	logger      *slog.Logger
	multiTenant bool
}

func NewService(db *gorm.DB, jwt *JWTService, lockout *LockoutGuard, refresh *RefreshTokenStore, reset *PasswordResetFlow, logger *slog.Logger, multiTenant bool) *Service {
	return &Service{
		db:          db,
		jwt:         jwt,
		lockout:     lockout,
		refresh:     refresh,
		reset:       reset,
		logger:      logger,
		multiTenant: multiTenant,
	}
}

type RegisterInput struct {
	OrganizationName string
	Email            string
	Password         string
	Name             string
}

type LoginInput struct {
	Email    string
	Password string
}

// AuthResponse carries one issued session. RefreshToken is the raw opaque
// value; the handler delivers it in an HTTP-only cookie, never in the body.
type AuthResponse struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	locked, retryAfter, err := s.lockout.Check(ctx, input.Email)
	if err != nil {
		// Fail closed: a broken counter must not admit logins.
		return nil, err
	}
	if locked {
		return nil, &LockoutError{RetryAfter: retryAfter}
	}

	var user models.User
	err = s.db.WithContext(ctx).
		Preload("Organization").
		Where("email = ?", input.Email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Burn the same KDF work as a real verification so response
			// timing does not reveal whether the email exists.
			VerifyPassword(input.Password, dummyHash)
			if err := s.lockout.RecordAttempt(ctx, input.Email, false); err != nil {
				return nil, err
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if user.Organization == nil || !user.Organization.IsActive {
		return nil, ErrInactiveOrganization
	}

	valid, needsRehash := VerifyPassword(input.Password, user.PasswordHash)
	if !valid {
		if err := s.lockout.RecordAttempt(ctx, input.Email, false); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.RecordAttempt(ctx, input.Email, true); err != nil {
		return nil, err
	}

	if needsRehash {
		s.rehashPassword(ctx, &user, input.Password)
	}

	return s.issueSession(ctx, &user)
}

// rehashPassword transparently upgrades a hash stored with obsolete
// parameters. Best effort: the login already succeeded.
func (s *Service) rehashPassword(ctx context.Context, user *models.User, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	err = s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error
	if err != nil {
		s.logger.Warn("persisting rehashed password failed", "user_id", user.ID, "error", err)
	}
}

// Refresh rotates the presented refresh token and issues a fresh access
// token from the user's current state.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*AuthResponse, error) {
	newRaw, user, err := s.refresh.Rotate(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwt.GenerateToken(user.ID, user.OrganizationID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRaw,
		User:         user,
	}, nil
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&existing).Error
	if err == nil {
		// Surfaced as the same generic failure as any other registration
		// problem, so the endpoint cannot be used to enumerate emails.
		return nil, ErrRegistrationFailed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if !s.multiTenant {
		var orgCount int64
		if err := s.db.WithContext(ctx).Model(&models.Organization{}).Count(&orgCount).Error; err != nil {
			return nil, err
		}
		if orgCount > 0 {
			return nil, ErrRegistrationFailed
		}
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, input.OrganizationName)
	if err != nil {
		return nil, err
	}

	org := models.Organization{
		Name:     input.OrganizationName,
		Slug:     slug,
		IsActive: true,
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		user = models.User{
			Email:          input.Email,
			PasswordHash:   hash,
			Name:           input.Name,
			OrganizationID: org.ID,
			Role:           models.RoleOwner,
			IsActive:       true,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}

	user.Organization = &org
	return s.issueSession(ctx, &user)
}

// Logout revokes the presented refresh token. Invalid or already-revoked
// tokens are not an error.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return s.refresh.Revoke(ctx, rawToken)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	return s.reset.Request(ctx, email)
}

func (s *Service) CompletePasswordReset(ctx context.Context, rawToken, newPassword string) error {
	return s.reset.Complete(ctx, rawToken, newPassword)
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Organization").
		First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*AuthResponse, error) {
	accessToken, err := s.jwt.GenerateToken(user.ID, user.OrganizationID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshToken, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// uniqueSlug derives a slug from the organization name and probes for a free
// one, appending a numeric disambiguator on collision.
func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slugify(name)
	if base == "" {
		base = "org"
	}

	candidate := base
	for n := 2; ; n++ {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.Organization{}).
			Where("slug = ?", candidate).
			Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("probing slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
