package dto

type ErrorResponse struct {
	Error      string            `json:"error"`
	Details    map[string]string `json:"details,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"` // seconds, lockout only
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (r APIKeyRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.APIKey == "" {
		errors["api_key"] = "API key is required"
	}

	return errors
}

type APIKeyResponse struct {
	APIKey    string `json:"api_key"` // masked
	Encrypted bool   `json:"encrypted"`
}
