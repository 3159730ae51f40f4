package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/oakpoint/schoolhub/internal/auth"
)

// QueueNotifier enqueues reset emails for the worker instead of blocking the
// request on SMTP.
type QueueNotifier struct {
	client *asynq.Client
}

func NewQueueNotifier(client *asynq.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func (n *QueueNotifier) SendPasswordReset(ctx context.Context, email, name, rawToken string) error {
	task, err := NewResetEmailTask(ResetEmailPayload{
		Email:    email,
		Name:     name,
		RawToken: rawToken,
	})
	if err != nil {
		return fmt.Errorf("building reset email task: %w", err)
	}

	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing reset email: %w", err)
	}
	return nil
}

var _ auth.ResetNotifier = (*QueueNotifier)(nil)
