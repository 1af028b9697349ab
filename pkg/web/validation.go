package web

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/stepflow/pkg/graph"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/schemas"
)

// DefinitionValidator is the activation gate: struct-level validation, graph
// validation and per-action config validation. A definition that passes here
// cannot produce definition errors at run time.
type DefinitionValidator struct {
	validate *validator.Validate
}

func NewDefinitionValidator() *DefinitionValidator {
	return &DefinitionValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate returns every violation found, one FieldError per offense.
func (v *DefinitionValidator) Validate(definition *models.WorkflowDefinition) []FieldError {
	var fieldErrors []FieldError

	if err := v.validate.Struct(definition); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fieldError := range invalid {
				fieldErrors = append(fieldErrors, FieldError{
					Field:   fieldError.Namespace(),
					Message: fmt.Sprintf("failed %q validation", fieldError.Tag()),
				})
			}
		} else {
			fieldErrors = append(fieldErrors, FieldError{Field: "definition", Message: err.Error()})
		}
	}

	for _, violation := range graph.New(definition.Steps).Validate() {
		fieldErrors = append(fieldErrors, FieldError{
			StepCode: violation.StepCode,
			Field:    violation.Field,
			Message:  violation.Message,
		})
	}

	for _, step := range definition.Steps {
		for _, trigger := range step.Triggers {
			for _, action := range trigger.Actions {
				configErrors, err := schemas.ValidateActionConfig(action.Type, action.Config)
				if err != nil {
					fieldErrors = append(fieldErrors, FieldError{
						StepCode: step.Code,
						Field:    fmt.Sprintf("triggers[%s].actions[%s].type", trigger.TriggerID, action.ActionID),
						Message:  err.Error(),
					})

					continue
				}

				for _, configError := range configErrors {
					fieldErrors = append(fieldErrors, FieldError{
						StepCode: step.Code,
						Field:    fmt.Sprintf("triggers[%s].actions[%s].config.%s", trigger.TriggerID, action.ActionID, configError.Field),
						Message:  configError.Message,
					})
				}
			}
		}
	}

	return fieldErrors
}
