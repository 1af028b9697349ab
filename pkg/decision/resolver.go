// Package decision resolves the outgoing transition of decision-type steps.
// Options are evaluated strictly in authored order; the first option whose
// condition holds against the instance context wins. Order is a load-bearing
// invariant, never a set.
package decision

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

// ErrNoMatch means every conditioned option evaluated false and no fallback
// exists. The caller leaves the instance blocked pending manual intervention.
var ErrNoMatch = errors.New("no decision option matched")

// ManualChoiceError signals that the step's options carry no conditions and
// the option set must be surfaced to the actor instead of guessed at.
type ManualChoiceError struct {
	Options []models.DecisionOption
}

func (e *ManualChoiceError) Error() string {
	return fmt.Sprintf("decision requires manual choice between %d options", len(e.Options))
}

// choiceContextPath is where a manual choice arrives in the instance context,
// written by the actor's outcome submission.
const choiceContextPath = "decision.choice"

// Resolver evaluates decision option conditions with expr-lang expressions.
// Compiled programs are cached and reused across goroutines.
type Resolver struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewResolver creates a decision resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With("module", "decision_resolver"),
		cache:  make(map[string]*vm.Program),
	}
}

// Resolve picks the next step code for a decision step. Conditioned options
// are evaluated in authored order and the first truthy one wins; an option
// without a condition is an unconditional fallback at its position. When no
// option carries a condition the actor must choose: a previously submitted
// choice (decision.choice in the context, matched by label) is honored,
// otherwise a ManualChoiceError carrying the option set is returned.
func (r *Resolver) Resolve(step *models.WorkflowStep, instanceContext map[string]any) (string, *models.DecisionOption, error) {
	if !step.IsDecision() {
		return "", nil, fmt.Errorf("step %q is not a decision step", step.Code)
	}

	if !anyConditioned(step.DecisionOptions) {
		return r.resolveManual(step, instanceContext)
	}

	for i := range step.DecisionOptions {
		option := &step.DecisionOptions[i]

		if !option.HasCondition() {
			return option.NextStep, option, nil
		}

		matched, err := r.evaluate(option.Condition, instanceContext)
		if err != nil {
			r.logger.Warn("Skipping decision option, condition evaluation failed",
				"step_code", step.Code,
				"option_label", option.Label,
				"error", err)

			continue
		}

		if matched {
			return option.NextStep, option, nil
		}
	}

	return "", nil, fmt.Errorf("step %q: %w", step.Code, ErrNoMatch)
}

func (r *Resolver) resolveManual(step *models.WorkflowStep, instanceContext map[string]any) (string, *models.DecisionOption, error) {
	choice, ok := template.Lookup(instanceContext, choiceContextPath)
	if ok {
		label, _ := choice.(string)
		for i := range step.DecisionOptions {
			if step.DecisionOptions[i].Label == label {
				return step.DecisionOptions[i].NextStep, &step.DecisionOptions[i], nil
			}
		}

		r.logger.Warn("Submitted choice matches no option, surfacing option set",
			"step_code", step.Code,
			"choice", choice)
	}

	return "", nil, &ManualChoiceError{Options: step.DecisionOptions}
}

func (r *Resolver) evaluate(condition string, instanceContext map[string]any) (bool, error) {
	program, err := r.compile(condition)
	if err != nil {
		return false, err
	}

	env := instanceContext
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, want bool", condition, out)
	}

	return result, nil
}

func (r *Resolver) compile(condition string) (*vm.Program, error) {
	r.mu.RLock()
	if program, ok := r.cache[condition]; ok {
		r.mu.RUnlock()

		return program, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if program, ok := r.cache[condition]; ok {
		return program, nil
	}

	program, err := expr.Compile(condition, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile condition %q: %w", condition, err)
	}

	r.cache[condition] = program

	return program, nil
}

func anyConditioned(options []models.DecisionOption) bool {
	for _, option := range options {
		if option.HasCondition() {
			return true
		}
	}

	return false
}
