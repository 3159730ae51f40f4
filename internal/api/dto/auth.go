package dto

import "github.com/oakpoint/schoolhub/internal/api/validation"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type RegisterRequest struct {
	OrganizationName string `json:"organization_name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
}

func (r RegisterRequest) Validate(minPasswordLength int) map[string]string {
	errors := make(map[string]string)

	if r.OrganizationName == "" {
		errors["organization_name"] = "Organization name is required"
	}
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is invalid"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if len(r.Password) < minPasswordLength {
		errors["password"] = "Password is too short"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}

	return errors
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate(minPasswordLength int) map[string]string {
	errors := make(map[string]string)

	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if len(r.Password) < minPasswordLength {
		errors["password"] = "Password is too short"
	}

	return errors
}

type AuthResponse struct {
	AccessToken  string          `json:"access_token"`
	User         UserDTO         `json:"user"`
	Organization OrganizationDTO `json:"organization"`
}

type UserDTO struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

type OrganizationDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
