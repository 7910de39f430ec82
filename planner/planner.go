// Package planner defines the pure-function planner contract the agent loop
// invokes each iteration, plus a JSON-extracting adapter over a chat model.
package planner

import (
	"context"

	"github.com/featherlabs/feather/memory"
)

// Action is one tool invocation a plan requests.
type Action struct {
	Tool string
	Args map[string]any
}

// PlanRequest is the read-only input a Planner receives.
type PlanRequest struct {
	SessionID string
	Input     string
	Context   []memory.Turn
	Metadata  map[string]any
	Iteration int
	Prompt    string
}

// PlanResult is normalized to exactly one of Actions or Final being set.
type PlanResult struct {
	Actions []Action
	Final   string
	IsFinal bool
}

// InvalidPlanFormatError reports a plan that is neither an actions list nor
// a final message.
type InvalidPlanFormatError struct {
	Reason string
}

func (e *InvalidPlanFormatError) Error() string {
	return "planner: invalid plan format: " + e.Reason
}

// InvalidPlanFinalError reports a final-message plan with an invalid shape.
type InvalidPlanFinalError struct {
	Reason string
}

func (e *InvalidPlanFinalError) Error() string {
	return "planner: invalid final message: " + e.Reason
}

// Planner is a pure function producing a plan from a read-only context.
// It is a function type rather than an interface since planning needs no
// identity beyond its behavior; callers needing state close over it.
type Planner func(ctx context.Context, req PlanRequest) (PlanResult, error)

// Validate checks that result is normalized to exactly one of Actions/Final.
func Validate(result PlanResult) error {
	hasActions := len(result.Actions) > 0
	hasFinal := result.IsFinal
	switch {
	case hasActions && hasFinal:
		return &InvalidPlanFormatError{Reason: "plan cannot carry both actions and a final message"}
	case !hasActions && !hasFinal:
		return &InvalidPlanFormatError{Reason: "plan must carry either actions or a final message"}
	case hasFinal && result.Final == "":
		return &InvalidPlanFinalError{Reason: "final message must be non-empty"}
	}
	return nil
}
