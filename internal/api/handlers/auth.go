package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/oakpoint/schoolhub/internal/api/dto"
	"github.com/oakpoint/schoolhub/internal/auth"
)

// refreshCookieName is scoped to the auth path prefix; the raw refresh token
// never appears in a JSON body.
const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

type AuthHandler struct {
	authService  auth.Authenticator
	minPassword  int
	refreshTTL   time.Duration
	secureCookie bool
}

func NewAuthHandler(authService auth.Authenticator, minPassword int, refreshTTL time.Duration, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		minPassword:  minPassword,
		refreshTTL:   refreshTTL,
		secureCookie: secureCookie,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken)
	writeJSON(w, http.StatusOK, toAuthResponse(resp))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Refresh token is required"})
		return
	}

	resp, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken)
	writeJSON(w, http.StatusOK, toAuthResponse(resp))
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(h.minPassword); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, resp.RefreshToken)
	writeJSON(w, http.StatusCreated, toAuthResponse(resp))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.refreshTokenFrom(r); token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			h.writeAuthError(w, err)
			return
		}
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeAuthError(w, err)
		return
	}

	// Identical body whether or not the email exists
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "If the email exists, a reset link has been sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(h.minPassword); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.authService.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password has been reset"})
}

// refreshTokenFrom reads the cookie first, then the request body.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// writeAuthError maps service errors onto the response kinds. Anything not
// explicitly matched becomes a generic 500: no storage or crypto detail may
// reach the client.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var lockErr *auth.LockoutError
	if errors.As(err, &lockErr) {
		retry := int(lockErr.RetryAfter.Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{
			Error:      "Too many failed login attempts",
			RetryAfter: retry,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid email or password"})
	case errors.Is(err, auth.ErrInactiveUser):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is deactivated"})
	case errors.Is(err, auth.ErrInactiveOrganization):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Organization is inactive"})
	case errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or revoked refresh token"})
	case errors.Is(err, auth.ErrExpiredToken):
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Refresh token has expired"})
	case errors.Is(err, auth.ErrRegistrationFailed):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Registration could not be completed"})
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid or already used reset token"})
	case errors.Is(err, auth.ErrExpiredResetToken):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Reset token has expired"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}

func toAuthResponse(resp *auth.AuthResponse) dto.AuthResponse {
	out := dto.AuthResponse{
		AccessToken: resp.AccessToken,
		User: dto.UserDTO{
			ID:             resp.User.ID.String(),
			Email:          resp.User.Email,
			Name:           resp.User.Name,
			Role:           resp.User.Role,
			OrganizationID: resp.User.OrganizationID.String(),
		},
	}
	if resp.User.Organization != nil {
		out.Organization = dto.OrganizationDTO{
			ID:   resp.User.Organization.ID.String(),
			Name: resp.User.Organization.Name,
			Slug: resp.User.Organization.Slug,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
