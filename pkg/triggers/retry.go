package triggers

import (
	"context"
	"errors"

	"github.com/dukex/stepflow/pkg/actions"
)

// isRetryable classifies an execution error for the result record. Timeouts
// count as transient; executors mark their own transient failures.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return actions.IsTransient(err)
}
