package cmd

import (
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions/createtask"
	"github.com/dukex/stepflow/pkg/actions/notification"
	reminderaction "github.com/dukex/stepflow/pkg/actions/reminder"
	"github.com/dukex/stepflow/pkg/actions/sendemail"
	"github.com/dukex/stepflow/pkg/actions/updateentity"
	"github.com/dukex/stepflow/pkg/actions/webhook"
	"github.com/dukex/stepflow/pkg/registry"
)

// NewRegistry registers every built-in action type against the given
// delivery collaborators.
func NewRegistry(logger *slog.Logger, deliveries Deliveries) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(sendemail.NewActionFactory(deliveries.Email))
	reg.RegisterAction(notification.NewActionFactory(deliveries.Notifications))
	reg.RegisterAction(createtask.NewActionFactory(deliveries.Tasks))
	reg.RegisterAction(updateentity.NewActionFactory(deliveries.Entities))
	reg.RegisterAction(reminderaction.NewActionFactory(deliveries.Reminders))
	reg.RegisterAction(webhook.NewActionFactory())

	return reg
}
