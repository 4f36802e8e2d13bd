package agentloop

import (
	"fmt"
	"time"

	"github.com/martinemde/codeagent/unifiedllm"
)

// Role identifies the producer of a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single immutable entry in the conversation history.
// Assistant messages that requested a tool carry ToolCall; tool messages
// carry ToolResult; the compression summary carries Summary.
type Message struct {
	Index      int                 `json:"index"`
	Role       Role                `json:"role"`
	Content    string              `json:"content"`
	ToolCall   *ToolCall           `json:"tool_call,omitempty"`
	ToolResult *ToolResult         `json:"tool_result,omitempty"`
	Summary    *CompressionSummary `json:"summary,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message; call may be nil.
func NewAssistantMessage(content string, call *ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCall: call}
}

// NewToolMessage creates a tool observation message from a dispatch result.
func NewToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Content: result.Observation(), ToolResult: &result}
}

// clone returns a deep copy so callers cannot mutate stored messages.
func (m Message) clone() Message {
	if m.ToolCall != nil {
		tc := *m.ToolCall
		if tc.Arguments != nil {
			args := make(map[string]any, len(tc.Arguments))
			for k, v := range tc.Arguments {
				args[k] = v
			}
			tc.Arguments = args
		}
		m.ToolCall = &tc
	}
	if m.ToolResult != nil {
		tr := *m.ToolResult
		m.ToolResult = &tr
	}
	if m.Summary != nil {
		s := m.Summary.clone()
		m.Summary = &s
	}
	return m
}

// History is the ordered message log of one conversation. Entry 0 is always
// the system prompt. History is append-only; only the Compressor produces a
// shorter history, as a new value. It is not safe for concurrent use.
type History struct {
	messages  []Message
	nextIndex int
	now       func() time.Time
}

// NewHistory creates a history holding only the system prompt.
func NewHistory(systemPrompt string) *History {
	h := &History{now: time.Now}
	_, _ = h.Append(NewSystemMessage(systemPrompt))
	return h
}

// Append stores a copy of msg, assigns its index and timestamp, and returns
// the stored value.
func (h *History) Append(msg Message) (Message, error) {
	if len(h.messages) == 0 && msg.Role != RoleSystem {
		return Message{}, ErrNoSystemPrompt
	}
	msg = msg.clone()
	msg.Index = h.nextIndex
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.clock()
	}
	if msg.ToolCall != nil {
		msg.ToolCall.MessageIndex = msg.Index
	}
	if msg.ToolResult != nil {
		msg.ToolResult.MessageIndex = msg.Index
	}
	h.nextIndex++
	h.messages = append(h.messages, msg)
	return msg.clone(), nil
}

// MustAppend is Append for callers that already hold a system prompt.
func (h *History) MustAppend(msg Message) Message {
	stored, err := h.Append(msg)
	if err != nil {
		panic(fmt.Sprintf("agentloop: %v", err))
	}
	return stored
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// At returns a copy of message i.
func (h *History) At(i int) Message {
	return h.messages[i].clone()
}

// Last returns a copy of the final message, or false when empty.
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1].clone(), true
}

// SystemPrompt returns the content of message 0.
func (h *History) SystemPrompt() string {
	if len(h.messages) == 0 {
		return ""
	}
	return h.messages[0].Content
}

// Slice returns copies of messages in [from, to), clamped to bounds.
func (h *History) Slice(from, to int) []Message {
	if from < 0 {
		from = 0
	}
	if to > len(h.messages) {
		to = len(h.messages)
	}
	if from >= to {
		return nil
	}
	out := make([]Message, 0, to-from)
	for _, m := range h.messages[from:to] {
		out = append(out, m.clone())
	}
	return out
}

// Messages returns copies of every message.
func (h *History) Messages() []Message {
	return h.Slice(0, len(h.messages))
}

// ToolCalls returns the tool calls requested in the last n assistant messages
// that carried one, oldest first.
func (h *History) ToolCalls(n int) []ToolCall {
	var calls []ToolCall
	for i := len(h.messages) - 1; i >= 0 && len(calls) < n; i-- {
		if tc := h.messages[i].ToolCall; tc != nil {
			calls = append(calls, *tc)
		}
	}
	for i, j := 0, len(calls)-1; i < j; i, j = i+1, j-1 {
		calls[i], calls[j] = calls[j], calls[i]
	}
	return calls
}

func (h *History) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

// fromMessages builds a history that keeps the given messages verbatim
// (indices included) and continues numbering after nextIndex.
func fromMessages(msgs []Message, nextIndex int, now func() time.Time) *History {
	h := &History{now: now, nextIndex: nextIndex}
	h.messages = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		h.messages = append(h.messages, m.clone())
	}
	return h
}

// ToLLMMessages converts history messages into provider messages.
func ToLLMMessages(msgs []Message) []unifiedllm.Message {
	out := make([]unifiedllm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, unifiedllm.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, unifiedllm.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, unifiedllm.AssistantMessage(m.Content))
		case RoleTool:
			name, failed := "", false
			if m.ToolResult != nil {
				name, failed = m.ToolResult.Name, !m.ToolResult.Success
			}
			out = append(out, unifiedllm.ToolResultMessage(name, m.Content, failed))
		}
	}
	return out
}
