package agentloop

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{
			name:  "plain object",
			input: `{"thought": "look", "action": "read_file", "action_input": {"path": "a.go"}}`,
			want:  Decision{Thought: "look", Action: "read_file", ActionInput: map[string]any{"path": "a.go"}},
		},
		{
			name:  "fenced with prose",
			input: "Sure.\n```json\n{\"thought\": \"t\", \"action\": \"run_shell\", \"action_input\": {\"command\": \"ls {a,b}\"}}\n```\nDone.",
			want:  Decision{Thought: "t", Action: "run_shell", ActionInput: map[string]any{"command": "ls {a,b}"}},
		},
		{
			name:  "trailing comma and single quotes repaired",
			input: `{'thought': 'x', 'action': 'finish', 'action_input': {'answer': '42',},}`,
			want:  Decision{Thought: "x", Action: "finish", ActionInput: map[string]any{"answer": "42"}},
		},
		{
			name:  "input as JSON string",
			input: `{"action": "read_file", "action_input": "{\"path\": \"b.go\"}"}`,
			want:  Decision{Action: "read_file", ActionInput: map[string]any{"path": "b.go"}},
		},
		{
			name:  "bare string input",
			input: `{"action": "finish", "action_input": "all good"}`,
			want:  Decision{Action: "finish", ActionInput: map[string]any{"input": "all good"}},
		},
		{
			name:  "alternate keys",
			input: `{"reasoning": "r", "tool": "list_directory", "arguments": {"path": "."}}`,
			want:  Decision{Thought: "r", Action: "list_directory", ActionInput: map[string]any{"path": "."}},
		},
		{
			name:  "missing input",
			input: `{"thought": "t", "action": "list_directory"}`,
			want:  Decision{Thought: "t", Action: "list_directory", ActionInput: map[string]any{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDecision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecisionErrors(t *testing.T) {
	for _, input := range []string{
		"I will now read the file.",
		`{"thought": "no action here"}`,
		"",
	} {
		_, err := ParseDecision(input)
		require.ErrorIs(t, err, ErrNoAction, "input %q", input)
	}
}

func TestDecisionAnswer(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{Decision{Action: ActionFinish, ActionInput: map[string]any{"answer": "42"}}, "42"},
		{Decision{Action: ActionTaskComplete, ActionInput: map[string]any{"message": "fixed"}}, "fixed"},
		{Decision{Action: ActionFinish, ActionInput: map[string]any{"n": float64(1)}}, `{"n":1}`},
		{Decision{Thought: "only thought", Action: ActionFinish, ActionInput: map[string]any{}}, "only thought"},
	}
	for _, tt := range tests {
		require.True(t, tt.d.IsFinal())
		require.Equal(t, tt.want, tt.d.Answer())
	}
}

func TestDecisionToolCall(t *testing.T) {
	d := Decision{Action: "run_shell"}
	require.False(t, d.IsFinal())
	call := d.ToolCall()
	require.Equal(t, "run_shell", call.Name)
	require.NotNil(t, call.Arguments)
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"json array", `["Read main.go", "Fix bug", "Run tests"]`, []string{"Read main.go", "Fix bug", "Run tests"}},
		{"fenced array", "```json\n[\"a\", \"b\"]\n```", []string{"a", "b"}},
		{"steps object", `{"steps": [{"description": "one"}, {"step": "two"}, "three"]}`, []string{"one", "two", "three"}},
		{"numbered lines", "Plan:\n1. Read [main.go]\n2) Edit it\n3: Test", []string{"Read [main.go]", "Edit it", "Test"}},
		{"bullets", "- first\n* second\n", []string{"first", "second"}},
		{"step prefix", "Step 1: inspect\nStep 2 - fix", []string{"inspect", "fix"}},
		{"nothing", "I cannot plan this.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParsePlan(tt.input))
		})
	}
}

func TestParseCritique(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ReflectionCritique
		clean bool
	}{
		{
			name:  "json with findings",
			input: `{"factual_error": "", "logic_gap": "misses nil case", "efficiency": "none", "missing_info": ["no tests", "no docs"]}`,
			want:  ReflectionCritique{LogicGap: "misses nil case", MissingInfo: "no tests; no docs"},
		},
		{
			name:  "clean json",
			input: "```json\n{\"factual_error\": null, \"logic_gap\": \"N/A\", \"efficiency\": false, \"missing_info\": \"\"}\n```",
			clean: true,
		},
		{
			name:  "labelled lines",
			input: "Factual error: none\nLogic gap: the loop never ends\n- efficiency: ok\nmissing_info: n/a",
			want:  ReflectionCritique{LogicGap: "the loop never ends"},
		},
		{
			name:  "plain no issues",
			input: "Looks good to me, no issues found.",
			clean: true,
		},
		{
			name:  "plain clean phrase followed by a problem",
			input: "No issues with syntax, but the function ignores empty input and panics.",
			want:  ReflectionCritique{LogicGap: "No issues with syntax, but the function ignores empty input and panics."},
		},
		{
			name:  "plain clean sentence then a finding",
			input: "Looks good. However the loop never terminates.",
			want:  ReflectionCritique{LogicGap: "Looks good. However the loop never terminates."},
		},
		{
			name:  "unparseable text becomes logic gap",
			input: "The answer forgets to handle empty input.",
			want:  ReflectionCritique{LogicGap: "The answer forgets to handle empty input."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCritique(tt.input)
			require.Equal(t, tt.clean, got.Clean())
			if !tt.clean {
				require.Equal(t, tt.want, got)
			}
		})
	}
}
