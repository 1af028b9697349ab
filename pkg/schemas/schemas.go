// Package schemas validates action configuration against per-type JSON
// schemas. Malformed config is a definition error: it is caught when a
// workflow definition is saved, before any instance can reach the action.
package schemas

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/stepflow/pkg/models"
)

var actionSchemas = map[models.ActionType]map[string]any{
	models.ActionTypeSendEmail: {
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "string", "minLength": 1},
			"subject": map[string]any{"type": "string", "minLength": 1},
			"body":    map[string]any{"type": "string"},
		},
		"required": []any{"to", "subject", "body"},
	},
	models.ActionTypeSendNotification: {
		"type": "object",
		"properties": map[string]any{
			"recipients": map[string]any{
				"type": "string",
				"enum": []any{"assignee", "requester", "admins", "custom"},
			},
			"custom":  map[string]any{"type": "string"},
			"message": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"recipients", "message"},
	},
	models.ActionTypeCreateTask: {
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string", "minLength": 1},
			"assignTo": map[string]any{
				"type": "string",
				"enum": []any{"same", "requester", "manager"},
			},
			"dueInDays": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []any{"title", "assignTo", "dueInDays"},
	},
	models.ActionTypeUpdateEntity: {
		"type": "object",
		"properties": map[string]any{
			"entityType": map[string]any{"type": "string", "minLength": 1},
			"field":      map[string]any{"type": "string", "minLength": 1},
			"value":      map[string]any{},
		},
		"required": []any{"entityType", "field", "value"},
	},
	models.ActionTypeScheduleReminder: {
		"type": "object",
		"properties": map[string]any{
			"delayHours": map[string]any{"type": "integer", "minimum": 1},
			"message":    map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"delayHours", "message"},
	},
	models.ActionTypeWebhook: {
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{
				"type": "string",
				"enum": []any{"POST", "GET", "PUT"},
			},
		},
		"required": []any{"url", "method"},
	},
}

// ConfigError describes one field-level violation in an action config.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateActionConfig checks config against the schema of actionType.
// Template placeholders are opaque strings at this stage, so only shape and
// presence are validated, never placeholder contents.
func ValidateActionConfig(actionType models.ActionType, config map[string]any) ([]ConfigError, error) {
	schema, ok := actionSchemas[actionType]
	if !ok {
		return nil, fmt.Errorf("no schema registered for action type %q", actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s config: %w", actionType, err)
	}

	if result.Valid() {
		return nil, nil
	}

	errs := make([]ConfigError, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		errs = append(errs, ConfigError{
			Field:   violation.Field(),
			Message: violation.Description(),
		})
	}

	return errs, nil
}
