package agentloop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryStartsWithSystemPrompt(t *testing.T) {
	h := NewHistory("be helpful")
	require.Equal(t, 1, h.Len())
	require.Equal(t, RoleSystem, h.At(0).Role)
	require.Equal(t, "be helpful", h.SystemPrompt())
	require.Equal(t, 0, h.At(0).Index)
	require.False(t, h.At(0).Timestamp.IsZero())
}

func TestHistoryRejectsNonSystemFirstMessage(t *testing.T) {
	var h History
	_, err := h.Append(NewUserMessage("hi"))
	require.ErrorIs(t, err, ErrNoSystemPrompt)
	require.Equal(t, 0, h.Len())
}

func TestHistoryAppendAssignsIndices(t *testing.T) {
	h := NewHistory("sys")
	u := h.MustAppend(NewUserMessage("task"))
	a := h.MustAppend(NewAssistantMessage("calling", &ToolCall{Name: "read_file", Arguments: map[string]any{"path": "a.go"}}))
	tm := h.MustAppend(NewToolMessage(ToolResult{Name: "read_file", Success: true, Payload: "package a"}))

	require.Equal(t, 1, u.Index)
	require.Equal(t, 2, a.Index)
	require.Equal(t, 2, a.ToolCall.MessageIndex)
	require.Equal(t, 3, tm.Index)
	require.Equal(t, 3, tm.ToolResult.MessageIndex)
	require.Equal(t, "package a", tm.Content)
}

func TestHistoryReturnsCopies(t *testing.T) {
	h := NewHistory("sys")
	h.MustAppend(NewAssistantMessage("x", &ToolCall{Name: "t", Arguments: map[string]any{"k": "v"}}))

	msgs := h.Messages()
	msgs[1].Content = "changed"
	msgs[1].ToolCall.Arguments["k"] = "mutated"

	stored := h.At(1)
	require.Equal(t, "x", stored.Content)
	require.Equal(t, "v", stored.ToolCall.Arguments["k"])
}

func TestHistorySliceClamps(t *testing.T) {
	h := NewHistory("sys")
	h.MustAppend(NewUserMessage("a"))
	h.MustAppend(NewUserMessage("b"))

	require.Len(t, h.Slice(-5, 100), 3)
	require.Nil(t, h.Slice(2, 1))
	got := h.Slice(1, 2)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Content)

	last, ok := h.Last()
	require.True(t, ok)
	require.Equal(t, "b", last.Content)
}

func TestHistoryToolCallsOldestFirst(t *testing.T) {
	h := NewHistory("sys")
	for _, name := range []string{"a", "b", "c"} {
		h.MustAppend(NewAssistantMessage(name, &ToolCall{Name: name}))
		h.MustAppend(NewToolMessage(ToolResult{Name: name, Success: true}))
	}
	calls := h.ToolCalls(2)
	require.Len(t, calls, 2)
	require.Equal(t, "b", calls[0].Name)
	require.Equal(t, "c", calls[1].Name)
}

func TestToLLMMessages(t *testing.T) {
	h := NewHistory("sys")
	h.MustAppend(NewUserMessage("task"))
	h.MustAppend(NewAssistantMessage("reply", nil))
	h.MustAppend(NewToolMessage(ToolResult{Name: "run_shell", ErrorKind: ErrorExecution, ErrorDetail: "boom"}))

	msgs := ToLLMMessages(h.Messages())
	require.Len(t, msgs, 4)
	require.Equal(t, "system", string(msgs[0].Role))
	require.Equal(t, "user", string(msgs[1].Role))
	require.Equal(t, "assistant", string(msgs[2].Role))
	require.Equal(t, "tool", string(msgs[3].Role))
	require.Contains(t, msgs[3].PlainText(), "run_shell")
}
