package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInactiveUser         = errors.New("user is inactive")
	ErrInactiveOrganization = errors.New("organization is inactive")
	ErrRegistrationFailed   = errors.New("registration could not be completed")

	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")

	ErrInvalidResetToken = errors.New("invalid reset token")
	ErrExpiredResetToken = errors.New("reset token has expired")
)

// LockoutError signals a temporarily blocked account. RetryAfter is the
// time until enough failures age out of the rolling window to unlock.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}
