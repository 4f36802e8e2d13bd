package agentloop

import "context"

// Strategy names a controller.
type Strategy string

const (
	StrategyReactive     Strategy = "reactive"
	StrategyPlanAndSolve Strategy = "plan_and_solve"
	StrategyReflection   Strategy = "reflection"
)

// Strategies lists every built-in strategy.
var Strategies = []Strategy{StrategyReactive, StrategyPlanAndSolve, StrategyReflection}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, bool) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// Outcome is what a controller hands back to the orchestrator.
type Outcome struct {
	Status      Status
	FinalAnswer string
	Termination string
	Reason      string
	Iterations  int
	Plan        *Plan
	Critiques   []ReflectionCritique
}

// Controller drives one problem to a terminal Outcome. The returned error is
// non-nil only when the LLM capability failed; tool failures, format errors
// and exhausted budgets are reported through Outcome.
type Controller interface {
	Name() Strategy
	Run(ctx context.Context, rc *RunContext, problem string) (Outcome, error)
}

func cancelledOutcome(iterations int) Outcome {
	return Outcome{Status: StatusCancelled, Termination: TerminationCancelled, Iterations: iterations}
}
