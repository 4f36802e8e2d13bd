package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/codeagent/unifiedllm"
)

// scriptedLLM replies from a fixed script. ChatFn, when set, takes over.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	next    int
	calls   [][]unifiedllm.Message
	ChatFn  func(call int, msgs []unifiedllm.Message) (string, error)
}

func newScriptedLLM(replies ...string) *scriptedLLM {
	return &scriptedLLM{replies: replies}
}

func (s *scriptedLLM) Chat(ctx context.Context, msgs []unifiedllm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msgs)
	call := len(s.calls) - 1
	if s.ChatFn != nil {
		return s.ChatFn(call, msgs)
	}
	if s.next >= len(s.replies) {
		return "", errors.New("script exhausted")
	}
	r := s.replies[s.next]
	s.next++
	return r, nil
}

func (s *scriptedLLM) SendRecv(ctx context.Context, msgs []unifiedllm.Message) (*unifiedllm.Response, error) {
	text, err := s.Chat(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(text)}, nil
}

func (s *scriptedLLM) ExtractText(resp *unifiedllm.Response) (string, error) {
	return resp.Text(), nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func action(name string, input map[string]any) string {
	raw, _ := json.Marshal(map[string]any{
		"thought":      "working on " + name,
		"action":       name,
		"action_input": input,
	})
	return string(raw)
}

func finish(answer string) string {
	return action(ActionFinish, map[string]any{"answer": answer})
}

func echoTool(name string) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{Name: name, Description: "echoes its input"},
		Capability: CapabilityFunc(func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%s ok: %v", name, args["input"]), nil
		}),
	}
}

func newTestRunContext(t *testing.T, llm LLM, tools ...RegisteredTool) *RunContext {
	t.Helper()
	d := NewDispatcher(WithDefaultTimeout(time.Second))
	for _, tool := range tools {
		d.Register(tool)
	}
	return &RunContext{
		RunID:      "test-run",
		History:    NewHistory("system prompt"),
		Dispatcher: d,
		LLM:        llm,
		Limits: Limits{
			MaxReactIterations:     5,
			MaxPlanStepIterations:  3,
			MaxReflectionRevisions: 2,
		},
	}
}

type fakeRecorder struct {
	mu           sync.Mutex
	toolCalls    map[string]int
	compressions int
	runs         []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{toolCalls: map[string]int{}}
}

func (f *fakeRecorder) RecordToolCall(tool, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolCalls[tool+"/"+outcome]++
}

func (f *fakeRecorder) RecordCompression(_, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compressions++
}

func (f *fakeRecorder) RecordRun(strategy, status string, _ time.Duration, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, strategy+"/"+status)
}
