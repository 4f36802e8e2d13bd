package agentloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func historyWithCalls(calls ...ToolCall) *History {
	h := NewHistory("sys")
	for _, c := range calls {
		c := c
		h.MustAppend(NewAssistantMessage("", &c))
		h.MustAppend(NewToolMessage(ToolResult{Name: c.Name, Success: true}))
	}
	return h
}

func TestDetectLoop(t *testing.T) {
	a := ToolCall{Name: "read_file", Arguments: map[string]any{"path": "a.go"}}
	b := ToolCall{Name: "read_file", Arguments: map[string]any{"path": "b.go"}}
	c := ToolCall{Name: "run_tests", Arguments: map[string]any{}}

	tests := []struct {
		name   string
		calls  []ToolCall
		window int
		want   bool
	}{
		{"same call repeated", []ToolCall{a, a, a, a}, 4, true},
		{"alternating pair", []ToolCall{a, b, a, b}, 4, true},
		{"triple cycle", []ToolCall{a, b, c, a, b, c}, 6, true},
		{"no pattern", []ToolCall{a, b, c, b}, 4, false},
		{"too few calls", []ToolCall{a, a}, 4, false},
		{"window disabled", []ToolCall{a, a, a}, 1, false},
		{"same name different args", []ToolCall{a, b, b, b}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DetectLoop(historyWithCalls(tt.calls...), tt.window))
		})
	}
}

func TestToolCallSignatureIgnoresKeyOrder(t *testing.T) {
	x := ToolCall{Name: "edit_file", Arguments: map[string]any{"path": "a", "operation": "delete"}}
	y := ToolCall{Name: "edit_file", Arguments: map[string]any{"operation": "delete", "path": "a"}}
	require.Equal(t, toolCallSignature(x), toolCallSignature(y))
}

func TestTruncateOutput(t *testing.T) {
	out := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	require.Equal(t, out, TruncateOutput(out, 200, TruncateHeadTail))

	head := TruncateOutput(out, 20, TruncateHeadTail)
	require.True(t, strings.HasPrefix(head, strings.Repeat("a", 10)))
	require.True(t, strings.HasSuffix(head, strings.Repeat("b", 10)))
	require.Contains(t, head, "80 characters removed")

	tail := TruncateOutput(out, 20, TruncateTail)
	require.True(t, strings.HasSuffix(tail, strings.Repeat("b", 20)))
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('0' + i))
	}
	got := TruncateLines(strings.Join(lines, "\n"), 4)
	require.Equal(t, "0\n1\n[... 6 lines omitted ...]\n8\n9", got)
}

func TestTruncateToolOutputUsesOverrides(t *testing.T) {
	out := strings.Repeat("x\n", 1000)
	got := TruncateToolOutput(out, "run_shell", nil, map[string]int{"run_shell": 10})
	require.Contains(t, got, "lines omitted")
	require.Less(t, strings.Count(got, "\n"), 20)
}
