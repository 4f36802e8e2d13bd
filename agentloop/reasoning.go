package agentloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Termination reasons reported on Outcome and Report.
const (
	TerminationFinalAnswer       = "final_answer"
	TerminationMaxIterations     = "max_iterations_exceeded"
	TerminationMaxRevisions      = "max_revisions_exceeded"
	TerminationPlanFailed        = "plan_failed"
	TerminationCancelled         = "cancelled"
	TerminationLLMError          = "llm_error"
	TerminationPanic             = "panic"
	TerminationPlanCompleted     = "plan_completed"
	TerminationPlanPartial       = "plan_partially_completed"
	TerminationCritiqueSatisfied = "critique_satisfied"
)

// loopScope configures one run of the shared think/act/observe loop.
type loopScope struct {
	label         string
	maxIterations int
	// base, when set, replaces the full history as the query context and
	// only this loop's own exchanges are added to it.
	base []Message
}

type loopResult struct {
	answer      string
	final       bool
	cancelled   bool
	iterations  int
	termination string
	lastContent string
}

// reason runs Thinking -> Acting -> Observing until the model gives a final
// answer, the iteration budget runs out, the context is cancelled or the LLM
// fails. Every exchange is appended to the run history.
func (rc *RunContext) reason(ctx context.Context, scope loopScope) (loopResult, error) {
	var res loopResult
	var local []Message
	lastLoopWarning := -scope.maxIterations

	record := func(msg Message) {
		stored := rc.Append(msg)
		if scope.base != nil {
			local = append(local, stored)
		}
	}

	for res.iterations < scope.maxIterations {
		if ctx.Err() != nil {
			res.cancelled = true
			res.termination = TerminationCancelled
			return res, nil
		}
		res.iterations++

		var (
			text string
			err  error
		)
		if scope.base != nil {
			text, err = rc.QueryWith(ctx, append(append([]Message(nil), scope.base...), local...))
		} else {
			text, err = rc.Query(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				res.cancelled = true
				res.termination = TerminationCancelled
				return res, nil
			}
			res.termination = TerminationLLMError
			return res, err
		}
		res.lastContent = text

		decision, perr := ParseDecision(text)
		if perr != nil {
			record(NewAssistantMessage(text, nil))
			record(NewUserMessage(formatErrorObservation(perr)))
			rc.emit(EventFormatError, map[string]any{"scope": scope.label, "error": perr.Error()})
			rc.logger().Debug("unparseable model reply", zap.String("scope", scope.label), zap.Error(perr))
			continue
		}

		rc.emit(EventThought, map[string]any{
			"scope":   scope.label,
			"thought": decision.Thought,
			"action":  decision.Action,
			"input":   decision.ActionInput,
		})

		if decision.IsFinal() {
			record(NewAssistantMessage(text, nil))
			res.final = true
			res.answer = decision.Answer()
			res.termination = TerminationFinalAnswer
			return res, nil
		}

		call := decision.ToolCall()
		assistant := rc.Append(NewAssistantMessage(text, call))
		if scope.base != nil {
			local = append(local, assistant)
		}

		if ctx.Err() != nil {
			res.cancelled = true
			res.termination = TerminationCancelled
			return res, nil
		}

		result := rc.Execute(ctx, *assistant.ToolCall)
		record(NewToolMessage(result))

		if w := rc.Limits.LoopDetectionWindow; w > 0 && res.iterations-lastLoopWarning >= w && DetectLoop(rc.History, w) {
			lastLoopWarning = res.iterations
			warning := fmt.Sprintf("Loop detected: the last %d tool calls repeat the same pattern. Try a different approach.", w)
			record(NewUserMessage(warning))
			rc.emit(EventLoopDetection, map[string]any{"scope": scope.label, "message": warning})
		}
	}

	res.termination = TerminationMaxIterations
	rc.emit(EventIterationLimit, map[string]any{"scope": scope.label, "iterations": res.iterations})
	return res, nil
}
