package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeResetEmail       = "auth:reset_email"
	TypeCredentialsPurge = "maintenance:credentials_purge"
)

// ResetEmailPayload carries one password-reset dispatch. The raw token is
// only ever in flight here and in the email itself; storage holds its hash.
type ResetEmailPayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	RawToken string `json:"raw_token"`
}

func NewResetEmailTask(payload ResetEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResetEmail, data, asynq.Queue("critical"), asynq.MaxRetry(5)), nil
}

// CredentialsPurgePayload is empty: the purge sweeps everything expired.
type CredentialsPurgePayload struct{}

func NewCredentialsPurgeTask() *asynq.Task {
	return asynq.NewTask(TypeCredentialsPurge, nil, asynq.Queue("low"))
}
