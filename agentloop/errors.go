package agentloop

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSystemPrompt is returned when a non-system message is appended to
	// an empty history.
	ErrNoSystemPrompt = errors.New("history must start with a system message")

	// ErrInvalidCompression is returned for compressor bounds outside 0 <= b < a.
	ErrInvalidCompression = errors.New("compression requires 0 <= keep_last_b < threshold_a")

	// ErrMaxIterationsExceeded marks a reasoning loop that ran out of iterations.
	ErrMaxIterationsExceeded = errors.New("max iterations exceeded")

	// ErrMaxRevisionsExceeded marks a reflection run that ran out of revisions.
	ErrMaxRevisionsExceeded = errors.New("max revisions exceeded")

	// ErrEmptyPlan is returned when the planning query yields no steps.
	ErrEmptyPlan = errors.New("plan contained no steps")
)

// LLMError wraps a failure of the language model capability. It is the only
// error a controller returns; everything else is folded into its Outcome.
type LLMError struct {
	Op  string
	Err error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// IsLLMError reports whether err wraps an LLMError.
func IsLLMError(err error) bool {
	var le *LLMError
	return errors.As(err, &le)
}
