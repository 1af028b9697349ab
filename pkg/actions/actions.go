// Package actions defines the contract for the closed set of action
// executors. Each action type lives in its own subpackage and registers a
// Factory; the registry resolves the factory once at load time instead of
// re-dispatching on the type string ad hoc.
package actions

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
)

// Executor is one typed side effect invoked with template-resolved config.
// Execution is best effort: failures are recorded against the instance, they
// never block a step transition.
type Executor interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
}

// Factory creates executor instances for one action type. Create receives
// config with all {{...}} placeholders already resolved and must reject
// malformed config with a permanent error.
type Factory interface {
	ID() models.ActionType
	Create(config map[string]any) (Executor, error)
}

// TransientError marks a failure eligible for retry (timeout, 5xx, rate
// limit). Anything else is permanent and recorded immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var transient *TransientError

	return errors.As(err, &transient)
}
