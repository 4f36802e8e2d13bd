package agentloop

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ReflectionCritique holds one review cycle's findings. An empty field means
// no finding in that dimension.
type ReflectionCritique struct {
	FactualError string `json:"factual_error"`
	LogicGap     string `json:"logic_gap"`
	Efficiency   string `json:"efficiency"`
	MissingInfo  string `json:"missing_info"`
}

// Clean reports whether the critique has no findings.
func (c ReflectionCritique) Clean() bool {
	return c.FactualError == "" && c.LogicGap == "" && c.Efficiency == "" && c.MissingInfo == ""
}

// Findings returns the non-empty dimensions keyed by name.
func (c ReflectionCritique) Findings() map[string]string {
	out := make(map[string]string, 4)
	for k, v := range map[string]string{
		"factual_error": c.FactualError,
		"logic_gap":     c.LogicGap,
		"efficiency":    c.Efficiency,
		"missing_info":  c.MissingInfo,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

var (
	nonFindingPattern  = regexp.MustCompile(`(?i)^(none|n/?a|no|null|nil|ok|-|no issues?( found)?\.?|nothing( to report)?\.?|no problems?( found)?\.?)$`)
	cleanClausePattern = regexp.MustCompile(`(?i)^(no (issues|problems|findings)( (found|here|at all))?|looks (good|correct|fine)( to me)?|lgtm|nothing to (improve|report)|(all )?good|correct)$`)
	clauseSeparator    = regexp.MustCompile(`[.,;:!?\n]+`)
	critiqueLine       = regexp.MustCompile(`(?im)^[\s*#-]*(factual[ _]error|logic[ _]gap|efficiency|missing[ _]info)\**\s*:\s*(.*)$`)
)

// ParseCritique reads a critique reply. A JSON object with the four
// dimension keys is preferred, then "name: text" lines. Plain text that
// consists only of no-issue clauses is clean; any other plain text is kept
// as a logic_gap finding so the draft gets revised.
func ParseCritique(text string) ReflectionCritique {
	var raw map[string]any
	if strings.Contains(text, "{") && decodeJSON(extractJSON(text, '{', '}'), &raw) == nil && hasCritiqueKey(raw) {
		return ReflectionCritique{
			FactualError: findingText(raw["factual_error"]),
			LogicGap:     findingText(raw["logic_gap"]),
			Efficiency:   findingText(raw["efficiency"]),
			MissingInfo:  findingText(raw["missing_info"]),
		}
	}

	if lines := critiqueLine.FindAllStringSubmatch(text, -1); len(lines) > 0 {
		var c ReflectionCritique
		for _, m := range lines {
			finding := findingText(m[2])
			switch strings.ReplaceAll(strings.ToLower(m[1]), " ", "_") {
			case "factual_error":
				c.FactualError = finding
			case "logic_gap":
				c.LogicGap = finding
			case "efficiency":
				c.Efficiency = finding
			case "missing_info":
				c.MissingInfo = finding
			}
		}
		return c
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || nonFindingPattern.MatchString(trimmed) || onlyCleanClauses(trimmed) {
		return ReflectionCritique{}
	}
	return ReflectionCritique{LogicGap: trimmed}
}

// onlyCleanClauses reports whether every clause of text says there is
// nothing to fix. "No issues with syntax, but it panics" is not clean.
func onlyCleanClauses(text string) bool {
	seen := false
	for _, clause := range clauseSeparator.Split(text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !cleanClausePattern.MatchString(clause) {
			return false
		}
		seen = true
	}
	return seen
}

func hasCritiqueKey(raw map[string]any) bool {
	for _, k := range []string{"factual_error", "logic_gap", "efficiency", "missing_info"} {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

func findingText(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if p := findingText(item); p != "" {
				parts = append(parts, p)
			}
		}
		s = strings.Join(parts, "; ")
	case bool:
		// "factual_error": false reads as "no finding".
		if !t {
			return ""
		}
		s = "true"
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if nonFindingPattern.MatchString(s) {
		return ""
	}
	return s
}

// ReflectionController drafts an answer, critiques it along four fixed
// dimensions and revises until a critique comes back clean or the revision
// budget is spent.
type ReflectionController struct{}

// Name implements Controller.
func (ReflectionController) Name() Strategy { return StrategyReflection }

// Run implements Controller.
func (ReflectionController) Run(ctx context.Context, rc *RunContext, problem string) (Outcome, error) {
	if ctx.Err() != nil {
		return cancelledOutcome(0), nil
	}
	rc.Append(NewUserMessage(problem))

	res, err := rc.reason(ctx, loopScope{label: "draft", maxIterations: rc.Limits.MaxReactIterations})
	iterations := res.iterations
	if err != nil {
		return Outcome{Status: StatusFailed, Termination: TerminationLLMError, Iterations: iterations}, err
	}
	if res.cancelled {
		return cancelledOutcome(iterations), nil
	}
	draft := draftFrom(res)

	var critiques []ReflectionCritique
	revisions := 0
	for {
		if ctx.Err() != nil {
			out := cancelledOutcome(iterations)
			out.FinalAnswer = draft
			out.Critiques = critiques
			return out, nil
		}

		rc.Append(NewUserMessage(critiquePrompt(problem, draft)))
		text, err := rc.Query(ctx)
		iterations++
		if err != nil {
			if ctx.Err() != nil {
				out := cancelledOutcome(iterations)
				out.FinalAnswer = draft
				out.Critiques = critiques
				return out, nil
			}
			return Outcome{Status: StatusFailed, Termination: TerminationLLMError, FinalAnswer: draft, Iterations: iterations, Critiques: critiques}, err
		}
		rc.Append(NewAssistantMessage(text, nil))

		critique := ParseCritique(text)
		critiques = append(critiques, critique)
		rc.emit(EventCritique, map[string]any{"revision": revisions, "clean": critique.Clean(), "findings": critique.Findings()})

		if critique.Clean() {
			return Outcome{
				Status:      StatusSuccess,
				FinalAnswer: draft,
				Termination: TerminationCritiqueSatisfied,
				Iterations:  iterations,
				Critiques:   critiques,
			}, nil
		}
		if revisions >= rc.Limits.MaxReflectionRevisions {
			return Outcome{
				Status:      StatusPartialSuccess,
				FinalAnswer: draft,
				Termination: TerminationMaxRevisions,
				Reason:      ErrMaxRevisionsExceeded.Error(),
				Iterations:  iterations,
				Critiques:   critiques,
			}, nil
		}

		if ctx.Err() != nil {
			out := cancelledOutcome(iterations)
			out.FinalAnswer = draft
			out.Critiques = critiques
			return out, nil
		}
		revisions++
		rc.Append(NewUserMessage(revisePrompt(problem, draft, critique)))
		res, err := rc.reason(ctx, loopScope{
			label:         fmt.Sprintf("revision %d", revisions),
			maxIterations: rc.Limits.MaxReactIterations,
		})
		iterations += res.iterations
		if err != nil {
			return Outcome{Status: StatusFailed, Termination: TerminationLLMError, FinalAnswer: draft, Iterations: iterations, Critiques: critiques}, err
		}
		if res.cancelled {
			out := cancelledOutcome(iterations)
			out.FinalAnswer = draft
			out.Critiques = critiques
			return out, nil
		}
		if d := draftFrom(res); d != "" {
			draft = d
		}
		rc.emit(EventRevision, map[string]any{"revision": revisions, "draft": draft})
	}
}

// draftFrom prefers a final answer and falls back to the last raw reply when
// the loop ran out of iterations.
func draftFrom(res loopResult) string {
	if res.final {
		return res.answer
	}
	return strings.TrimSpace(res.lastContent)
}
