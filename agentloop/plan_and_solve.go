package agentloop

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// StepStatus tracks a plan step through execution.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

// Step is one unit of a plan.
type Step struct {
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Iterations  int        `json:"iterations"`
}

// Plan is an ordered list of steps owned by a single run.
type Plan struct {
	Steps []Step `json:"steps"`
}

// NewPlan creates a plan with every step pending.
func NewPlan(descriptions []string) *Plan {
	p := &Plan{Steps: make([]Step, len(descriptions))}
	for i, d := range descriptions {
		p.Steps[i] = Step{Description: d, Status: StepPending}
	}
	return p
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	return &Plan{Steps: append([]Step(nil), p.Steps...)}
}

// AllDone reports whether every step finished successfully.
func (p *Plan) AllDone() bool {
	for _, s := range p.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return true
}

// Summary renders step statuses and results as the run's final answer.
func (p *Plan) Summary() string {
	var sb strings.Builder
	for i, s := range p.Steps {
		fmt.Fprintf(&sb, "Step %d [%s] %s", i+1, s.Status, s.Description)
		if s.Result != "" {
			fmt.Fprintf(&sb, "\n  %s", strings.ReplaceAll(s.Result, "\n", "\n  "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var planLinePattern = regexp.MustCompile(`^\s*(?:\d+[.):]|[-*•]|[Ss]tep\s+\d+\s*[:.)-])\s*(.+?)\s*$`)

// ParsePlan extracts step descriptions from a planning reply. It accepts a
// JSON array (of strings or objects with a description), an object with a
// "steps" array, or numbered or bulleted lines.
func ParsePlan(text string) []string {
	body := strings.TrimSpace(stripFences(text))
	if strings.HasPrefix(body, "[") || strings.HasPrefix(body, "{") {
		if steps := parseJSONPlan(body); len(steps) > 0 {
			return steps
		}
	}

	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if m := planLinePattern.FindStringSubmatch(line); m != nil && m[1] != "" {
			steps = append(steps, m[1])
		}
	}
	return steps
}

func parseJSONPlan(body string) []string {
	var items []any
	if strings.HasPrefix(body, "{") {
		var obj map[string]any
		if err := decodeJSON(extractJSON(body, '{', '}'), &obj); err != nil {
			return nil
		}
		for _, key := range []string{"steps", "plan"} {
			if arr, ok := obj[key].([]any); ok {
				items = arr
				break
			}
		}
	} else if err := decodeJSON(extractJSON(body, '[', ']'), &items); err != nil {
		return nil
	}

	var steps []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				steps = append(steps, s)
			}
		case map[string]any:
			if s := strings.TrimSpace(firstString(v, "description", "step", "title", "task")); s != "" {
				steps = append(steps, s)
			}
		}
	}
	return steps
}

// PlanAndSolveController asks for a plan up front and then runs a bounded
// reasoning loop per step. A failed step does not stop later steps.
type PlanAndSolveController struct{}

// Name implements Controller.
func (PlanAndSolveController) Name() Strategy { return StrategyPlanAndSolve }

// Run implements Controller.
func (PlanAndSolveController) Run(ctx context.Context, rc *RunContext, problem string) (Outcome, error) {
	if ctx.Err() != nil {
		return cancelledOutcome(0), nil
	}

	rc.Append(NewUserMessage(planPrompt(problem)))
	text, err := rc.Query(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledOutcome(0), nil
		}
		return Outcome{Status: StatusFailed, Termination: TerminationLLMError}, err
	}
	rc.Append(NewAssistantMessage(text, nil))

	descriptions := ParsePlan(text)
	if len(descriptions) == 0 {
		return Outcome{
			Status:      StatusFailed,
			Termination: TerminationPlanFailed,
			Reason:      ErrEmptyPlan.Error(),
			Iterations:  1,
		}, nil
	}
	plan := NewPlan(descriptions)
	rc.emit(EventPlanCreated, map[string]any{"steps": descriptions})

	iterations := 1
	system := rc.History.At(0)
	for i := range plan.Steps {
		if ctx.Err() != nil {
			out := cancelledOutcome(iterations)
			out.Plan = plan
			return out, nil
		}

		step := &plan.Steps[i]
		step.Status = StepInProgress
		rc.emit(EventStepStart, map[string]any{"index": i, "description": step.Description})

		prompt := rc.Append(NewUserMessage(stepPrompt(problem, plan, i)))
		res, err := rc.reason(ctx, loopScope{
			label:         fmt.Sprintf("step %d", i+1),
			maxIterations: rc.Limits.MaxPlanStepIterations,
			base:          []Message{system, prompt},
		})
		iterations += res.iterations
		step.Iterations = res.iterations
		if err != nil {
			step.Status = StepFailed
			return Outcome{Status: StatusFailed, Termination: TerminationLLMError, Iterations: iterations, Plan: plan}, err
		}

		switch {
		case res.cancelled:
			step.Status = StepPending
			out := cancelledOutcome(iterations)
			out.Plan = plan
			return out, nil
		case res.final:
			step.Status = StepDone
			step.Result = res.answer
		default:
			step.Status = StepFailed
			step.Result = fmt.Sprintf("step did not finish within %d iterations", rc.Limits.MaxPlanStepIterations)
		}
		rc.emit(EventStepEnd, map[string]any{"index": i, "status": string(step.Status), "result": step.Result})
	}

	out := Outcome{
		Status:      StatusSuccess,
		FinalAnswer: plan.Summary(),
		Termination: TerminationPlanCompleted,
		Iterations:  iterations,
		Plan:        plan,
	}
	if !plan.AllDone() {
		out.Status = StatusPartialSuccess
		out.Termination = TerminationPlanPartial
		out.Reason = "one or more plan steps failed"
	}
	return out, nil
}
