// Package graph provides the addressable step collection for one workflow
// definition and validates its structural invariants: unique step codes,
// resolvable transition targets, and a single entry step.
package graph

import (
	"fmt"
	"sort"

	"github.com/dukex/stepflow/pkg/models"
)

// ValidationError identifies one structural violation in a step graph.
type ValidationError struct {
	StepCode string `json:"stepCode"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.StepCode == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}

	return fmt.Sprintf("step %q, %s: %s", e.StepCode, e.Field, e.Message)
}

// StepGraph is a read-only view over the ordered steps of one definition.
// It never mutates the steps it was built from.
type StepGraph struct {
	steps   []*models.WorkflowStep
	byCode  map[string]*models.WorkflowStep
	ordered []*models.WorkflowStep // sorted by StepNumber
}

// New builds a StepGraph over steps. Construction succeeds even for invalid
// graphs; call Validate to surface structural errors. Duplicate codes keep
// the first occurrence addressable.
func New(steps []*models.WorkflowStep) *StepGraph {
	byCode := make(map[string]*models.WorkflowStep, len(steps))
	for _, step := range steps {
		if _, exists := byCode[step.Code]; !exists {
			byCode[step.Code] = step
		}
	}

	ordered := make([]*models.WorkflowStep, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StepNumber < ordered[j].StepNumber
	})

	return &StepGraph{steps: steps, byCode: byCode, ordered: ordered}
}

// Validate checks the structural invariants and returns one error per
// violation. A valid graph returns an empty slice.
func (g *StepGraph) Validate() []ValidationError {
	var errs []ValidationError

	if len(g.steps) == 0 {
		return append(errs, ValidationError{Field: "steps", Message: "workflow has no steps"})
	}

	seen := make(map[string]bool, len(g.steps))
	for _, step := range g.steps {
		if step.Code == "" {
			errs = append(errs, ValidationError{StepCode: step.Code, Field: "code", Message: "step code is required"})

			continue
		}

		if seen[step.Code] {
			errs = append(errs, ValidationError{
				StepCode: step.Code,
				Field:    "code",
				Message:  "duplicate step code",
			})
		}

		seen[step.Code] = true
	}

	for _, step := range g.steps {
		errs = append(errs, g.validateTransitions(step)...)
	}

	errs = append(errs, g.validateEntry()...)

	return errs
}

func (g *StepGraph) validateTransitions(step *models.WorkflowStep) []ValidationError {
	var errs []ValidationError

	if target, ok := step.ExplicitNext(); ok {
		if _, exists := g.byCode[target]; !exists {
			errs = append(errs, ValidationError{
				StepCode: step.Code,
				Field:    "nextStepOnComplete",
				Message:  fmt.Sprintf("references unknown step code %q", target),
			})
		}
	}

	if step.IsDecision() {
		if len(step.DecisionOptions) == 0 {
			errs = append(errs, ValidationError{
				StepCode: step.Code,
				Field:    "decisionOptions",
				Message:  "decision step requires at least one option",
			})
		}

		if _, ok := step.ExplicitNext(); ok {
			errs = append(errs, ValidationError{
				StepCode: step.Code,
				Field:    "nextStepOnComplete",
				Message:  "decision step transitions are governed by its options",
			})
		}
	} else if len(step.DecisionOptions) > 0 {
		errs = append(errs, ValidationError{
			StepCode: step.Code,
			Field:    "decisionOptions",
			Message:  fmt.Sprintf("only decision steps may carry options, step type is %q", step.StepType),
		})
	}

	for i, option := range step.DecisionOptions {
		if option.NextStep == models.NextStepAuto {
			continue
		}

		if _, exists := g.byCode[option.NextStep]; !exists {
			errs = append(errs, ValidationError{
				StepCode: step.Code,
				Field:    fmt.Sprintf("decisionOptions[%d].nextStep", i),
				Message:  fmt.Sprintf("references unknown step code %q", option.NextStep),
			})
		}
	}

	return errs
}

func (g *StepGraph) validateEntry() []ValidationError {
	var entries []*models.WorkflowStep

	for _, step := range g.steps {
		if step.StepNumber == 1 {
			entries = append(entries, step)
		}
	}

	switch len(entries) {
	case 1:
		return nil
	case 0:
		return []ValidationError{{Field: "stepNumber", Message: "no entry step: exactly one step must have stepNumber 1"}}
	default:
		return []ValidationError{{Field: "stepNumber", Message: fmt.Sprintf("ambiguous entry: %d steps have stepNumber 1", len(entries))}}
	}
}

// Step returns the step addressed by code.
func (g *StepGraph) Step(code string) (*models.WorkflowStep, bool) {
	step, ok := g.byCode[code]

	return step, ok
}

// Entry returns the entry step (stepNumber 1).
func (g *StepGraph) Entry() (*models.WorkflowStep, bool) {
	for _, step := range g.ordered {
		if step.StepNumber == 1 {
			return step, true
		}
	}

	return nil, false
}

// NextAuto returns the code of the step with the next-higher step number
// after the given step, or false if it is the last step.
func (g *StepGraph) NextAuto(code string) (string, bool) {
	current, ok := g.byCode[code]
	if !ok {
		return "", false
	}

	for _, step := range g.ordered {
		if step.StepNumber > current.StepNumber {
			return step.Code, true
		}
	}

	return "", false
}

// Steps returns the steps in authored order.
func (g *StepGraph) Steps() []*models.WorkflowStep {
	return g.steps
}
