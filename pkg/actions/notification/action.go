// Package notification provides the send_notification action executor.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

type ActionFactory struct {
	sender actions.NotificationSender
}

func NewActionFactory(sender actions.NotificationSender) *ActionFactory {
	return &ActionFactory{sender: sender}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeSendNotification
}

func (f *ActionFactory) Create(config map[string]any) (actions.Executor, error) {
	recipients, _ := config["recipients"].(string)
	message, _ := config["message"].(string)
	custom, _ := config["custom"].(string)

	if message == "" {
		return nil, errors.New("send_notification requires 'message'")
	}

	switch recipients {
	case "assignee", "requester", "admins":
	case "custom":
		if custom == "" {
			return nil, errors.New("send_notification with custom recipients requires 'custom'")
		}
	default:
		return nil, fmt.Errorf("send_notification recipients must be assignee, requester, admins or custom, got %q", recipients)
	}

	return &SendNotificationAction{
		Recipients: recipients,
		Custom:     custom,
		Message:    message,
		sender:     f.sender,
	}, nil
}

// SendNotificationAction pushes an in-app or channel notification to the
// recipient group resolved from the instance context.
type SendNotificationAction struct {
	Recipients string
	Custom     string
	Message    string

	sender actions.NotificationSender
}

func (a *SendNotificationAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_notification", "recipients", a.Recipients)

	resolved := a.resolveRecipients(executionCtx.Context)
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no %s recipient resolvable from instance context", a.Recipients)
	}

	if err := a.sender.Send(ctx, resolved, a.Message); err != nil {
		return nil, actions.Transient(fmt.Errorf("notification delivery failed: %w", err))
	}

	logger.Info("Notification dispatched", "recipient_count", len(resolved))

	return map[string]any{"recipients": resolved}, nil
}

func (a *SendNotificationAction) resolveRecipients(instanceContext map[string]any) []string {
	switch a.Recipients {
	case "assignee", "requester":
		for _, path := range []string{a.Recipients + ".email", a.Recipients + ".id"} {
			if value, ok := template.Lookup(instanceContext, path); ok {
				if id, ok := value.(string); ok && id != "" {
					return []string{id}
				}
			}
		}

		return nil
	case "admins":
		return []string{"admins"}
	case "custom":
		var out []string

		for _, recipient := range strings.Split(a.Custom, ",") {
			if trimmed := strings.TrimSpace(recipient); trimmed != "" {
				out = append(out, trimmed)
			}
		}

		return out
	default:
		return nil
	}
}
