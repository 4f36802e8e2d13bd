package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolCharLimits bounds each tool's payload before it enters history.
var DefaultToolCharLimits = map[string]int{
	"read_file":              50000,
	"search_in_file":         20000,
	"list_directory":         20000,
	"run_shell":              30000,
	"run_python":             30000,
	"run_tests":              30000,
	"run_linter":             20000,
	"parse_ast":              30000,
	"find_dependencies":      10000,
	"get_code_metrics":       5000,
	"get_function_signature": 5000,
	"edit_file":              10000,
	"create_file":            1000,
}

// DefaultTruncationModes picks which end of the output survives.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":      TruncateHeadTail,
	"run_shell":      TruncateHeadTail,
	"run_python":     TruncateHeadTail,
	"run_tests":      TruncateTail,
	"run_linter":     TruncateTail,
	"search_in_file": TruncateTail,
	"list_directory": TruncateTail,
	"edit_file":      TruncateTail,
	"create_file":    TruncateTail,
}

// DefaultToolLineLimits apply after character truncation.
var DefaultToolLineLimits = map[string]int{
	"run_shell":      256,
	"run_python":     256,
	"run_tests":      400,
	"search_in_file": 200,
	"list_directory": 500,
}

const fallbackCharLimit = 30000

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: output truncated, first %d characters removed]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: output truncated, %d characters removed from the middle. "+
			"Re-run the tool with narrower parameters to see them.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines when output exceeds maxLines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation, then line truncation,
// using overrides first and package defaults second.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
