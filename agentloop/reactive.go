package agentloop

import "context"

// ReactiveController alternates reasoning and tool use until the model gives
// a final answer or the iteration budget runs out.
type ReactiveController struct{}

// Name implements Controller.
func (ReactiveController) Name() Strategy { return StrategyReactive }

// Run implements Controller.
func (ReactiveController) Run(ctx context.Context, rc *RunContext, problem string) (Outcome, error) {
	if ctx.Err() != nil {
		return cancelledOutcome(0), nil
	}
	rc.Append(NewUserMessage(problem))

	res, err := rc.reason(ctx, loopScope{
		label:         string(StrategyReactive),
		maxIterations: rc.Limits.MaxReactIterations,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Termination: res.termination, Iterations: res.iterations}, err
	}

	switch {
	case res.cancelled:
		return cancelledOutcome(res.iterations), nil
	case res.final:
		return Outcome{
			Status:      StatusSuccess,
			FinalAnswer: res.answer,
			Termination: TerminationFinalAnswer,
			Iterations:  res.iterations,
		}, nil
	default:
		return Outcome{
			Status:      StatusPartialSuccess,
			FinalAnswer: res.lastContent,
			Termination: TerminationMaxIterations,
			Reason:      ErrMaxIterationsExceeded.Error(),
			Iterations:  res.iterations,
		}, nil
	}
}
