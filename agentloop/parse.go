package agentloop

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Final-answer actions. Any other action names a tool.
const (
	ActionFinish       = "finish"
	ActionTaskComplete = "task_complete"
)

// ErrNoAction is returned when a model reply carries no usable action.
var ErrNoAction = errors.New("reply contains no JSON action object")

// Decision is one parsed model reply.
type Decision struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	ActionInput map[string]any `json:"action_input"`
}

// IsFinal reports whether the decision ends the reasoning loop.
func (d Decision) IsFinal() bool {
	return d.Action == ActionFinish || d.Action == ActionTaskComplete
}

// Answer extracts the final answer text from a final decision.
func (d Decision) Answer() string {
	for _, key := range []string{"answer", "message", "result", "summary", "input"} {
		if s, ok := GetStringArg(d.ActionInput, key); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if len(d.ActionInput) > 0 {
		raw, err := json.Marshal(d.ActionInput)
		if err == nil {
			return string(raw)
		}
	}
	return d.Thought
}

// ToolCall converts a non-final decision into a dispatch request.
func (d Decision) ToolCall() *ToolCall {
	args := d.ActionInput
	if args == nil {
		args = map[string]any{}
	}
	return &ToolCall{Name: d.Action, Arguments: args}
}

// ParseDecision reads {"thought", "action", "action_input"} from a model
// reply. Fenced code blocks and surrounding prose are tolerated and
// malformed JSON is repaired before giving up.
func ParseDecision(text string) (Decision, error) {
	raw := extractJSON(text, '{', '}')
	if raw == "" {
		return Decision{}, ErrNoAction
	}

	var fields map[string]any
	if err := decodeJSON(raw, &fields); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrNoAction, err)
	}

	d := Decision{
		Thought: firstString(fields, "thought", "thinking", "reasoning"),
		Action:  strings.TrimSpace(firstString(fields, "action", "tool", "name")),
	}
	if d.Action == "" {
		return Decision{}, ErrNoAction
	}

	for _, key := range []string{"action_input", "arguments", "args", "input", "parameters"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch in := v.(type) {
		case map[string]any:
			d.ActionInput = in
		case string:
			d.ActionInput = decodeInputString(in)
		case nil:
		default:
			d.ActionInput = map[string]any{"input": in}
		}
		break
	}
	if d.ActionInput == nil {
		d.ActionInput = map[string]any{}
	}
	return d, nil
}

// decodeInputString handles action_input given as a JSON-encoded string or
// as a bare value.
func decodeInputString(s string) map[string]any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := decodeJSON(trimmed, &m); err == nil {
			return m
		}
	}
	return map[string]any{"input": s}
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// decodeJSON unmarshals raw, retrying once through jsonrepair.
func decodeJSON(raw string, v any) error {
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("invalid JSON after repair: %w", err)
	}
	return nil
}

// extractJSON returns the first balanced openCh...closeCh span in text, ignoring
// delimiters inside strings. An unterminated span is returned to the end of
// text so repair can close it.
func extractJSON(text string, openCh, closeCh byte) string {
	if span := balancedSpan(stripFences(text), openCh, closeCh); span != "" {
		return span
	}
	return balancedSpan(text, openCh, closeCh)
}

func balancedSpan(text string, openCh, closeCh byte) string {
	start := strings.IndexByte(text, openCh)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return strings.TrimSpace(text[start:])
}

// stripFences returns the body of the first fenced code block, or text
// unchanged when there is none.
func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}
