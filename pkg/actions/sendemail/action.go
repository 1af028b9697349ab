// Package sendemail provides the send_email action executor.
package sendemail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
)

const (
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
)

type ActionFactory struct {
	sender actions.EmailSender
}

func NewActionFactory(sender actions.EmailSender) *ActionFactory {
	return &ActionFactory{sender: sender}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeSendEmail
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	if to == "" {
		return nil, errors.New("send_email requires 'to'")
	}

	if subject == "" {
		return nil, errors.New("send_email requires 'subject'")
	}

	return &SendEmailAction{
		To:       to,
		Subject:  subject,
		Body:     body,
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		sender:   f.sender,
	}, nil
}

// SendEmailAction dispatches a single email. Delivery failures are treated
// as transient and retried with a bounded backoff before giving up.
type SendEmailAction struct {
	To       string
	Subject  string
	Body     string
	Attempts int
	Delay    time.Duration

	sender actions.EmailSender
}

func (a *SendEmailAction) Execute(ctx context.Context, _ models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_email", "to", a.To)

	var lastErr error

	for attempt := 1; attempt <= a.Attempts; attempt++ {
		if attempt > 1 {
			logger.Info("Retrying email delivery", "attempt", attempt, "max_attempts", a.Attempts)

			select {
			case <-ctx.Done():
				return nil, actions.Transient(ctx.Err())
			case <-time.After(a.Delay * time.Duration(attempt-1)):
			}
		}

		lastErr = a.sender.Send(ctx, a.To, a.Subject, a.Body)
		if lastErr == nil {
			logger.Info("Email dispatched")

			return map[string]any{"to": a.To, "subject": a.Subject}, nil
		}
	}

	return nil, actions.Transient(fmt.Errorf("email delivery failed after %d attempts: %w", a.Attempts, lastErr))
}
