package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/codeagent/agentloop"
	"github.com/martinemde/codeagent/unifiedllm"
)

// finishCompleter answers every request with a finish action.
type finishCompleter struct {
	mu       sync.Mutex
	requests []unifiedllm.Request
}

func (f *finishCompleter) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	raw, _ := json.Marshal(map[string]any{
		"thought":      "easy",
		"action":       "finish",
		"action_input": map[string]any{"answer": fmt.Sprintf("answer %d", len(f.requests))},
	})
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(string(raw))}, nil
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "codeagent.yaml")
	body := fmt.Sprintf(`
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: dummy
agent:
  working_dir: %s
logging:
  level: error
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, opts *Options, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(opts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &Options{}, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "commit:")
}

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, &Options{}, "", "tools", "--config", writeTestConfig(t))
	require.NoError(t, err)
	for _, name := range []string{"create_file", "run_shell", "parse_ast", "get_code_metrics"} {
		require.Contains(t, out, name)
	}
	require.Contains(t, out, "13 tools")
}

func TestRunSingleTask(t *testing.T) {
	completer := &finishCompleter{}
	out, err := execute(t, &Options{completer: completer}, "", "run", "--config", writeTestConfig(t), "say", "hi")
	require.NoError(t, err)
	require.Contains(t, out, "answer 1")
	require.Contains(t, out, "[success] final_answer after 1 iterations")
	require.Len(t, completer.requests, 1)
	require.Equal(t, "gpt-4o-mini", completer.requests[0].Model)

	msgs := completer.requests[0].Messages
	require.Equal(t, "say hi", msgs[len(msgs)-1].TextContent())
}

func TestRunJSONReport(t *testing.T) {
	out, err := execute(t, &Options{completer: &finishCompleter{}}, "", "run", "-q", "--json", "--config", writeTestConfig(t), "task")
	require.NoError(t, err)

	var report struct {
		Status      string `json:"status"`
		Strategy    string `json:"strategy"`
		FinalAnswer string `json:"final_answer"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "success", report.Status)
	require.Equal(t, "reactive", report.Strategy)
	require.Equal(t, "answer 1", report.FinalAnswer)
}

func TestRunInteractiveKeepsHistoryUntilReset(t *testing.T) {
	completer := &finishCompleter{}
	out, err := execute(t, &Options{completer: completer}, "first\nsecond\n/reset\nthird\n/exit\nignored\n",
		"run", "-q", "--config", writeTestConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, "answer 1")
	require.Contains(t, out, "answer 3")
	require.Contains(t, out, "[conversation reset]")
	require.Len(t, completer.requests, 3)

	// system, task, reply, task
	require.Len(t, completer.requests[1].Messages, 4)
	// system, task after the reset
	require.Len(t, completer.requests[2].Messages, 2)
}

func TestRunUnknownStrategy(t *testing.T) {
	_, err := execute(t, &Options{completer: &finishCompleter{}}, "", "run", "--strategy", "tree", "--config", writeTestConfig(t), "x")
	require.ErrorContains(t, err, `unknown strategy "tree"`)
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   agentloop.Event
		want string
	}{
		{"tool ok", agentloop.Event{Kind: agentloop.EventToolCallEnd, Data: map[string]any{
			"tool": "read_file", "success": true, "duration": "2ms", "output": "  hello\n",
		}}, "[tool read_file ok 2ms] hello\n"},
		{"tool failed", agentloop.Event{Kind: agentloop.EventToolCallEnd, Data: map[string]any{
			"tool": "run_shell", "success": false, "error_kind": "timeout", "error": "exceeded 1s",
		}}, "[tool run_shell timeout] exceeded 1s\n"},
		{"plan", agentloop.Event{Kind: agentloop.EventPlanCreated, Data: map[string]any{
			"steps": []string{"read", "fix"},
		}}, "[plan]\n  1. read\n  2. fix\n"},
		{"step", agentloop.Event{Kind: agentloop.EventStepStart, Data: map[string]any{
			"index": 0, "description": "read",
		}}, "[step 1] read\n"},
		{"clean critique", agentloop.Event{Kind: agentloop.EventCritique, Data: map[string]any{
			"clean": true,
		}}, "[critique] no issues\n"},
		{"compression", agentloop.Event{Kind: agentloop.EventCompression, Data: map[string]any{
			"original_count": 21, "compressed_count": 7,
		}}, "[compressed 21 -> 7 messages]\n"},
		{"run end is silent", agentloop.Event{Kind: agentloop.EventRunEnd}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderEvent(&buf, tt.ev)
			require.Equal(t, tt.want, buf.String())
		})
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("x", maxRenderedOutput+10)
	require.Equal(t, strings.Repeat("x", maxRenderedOutput)+"...", clip(long))
	require.Equal(t, "short", clip(" short "))
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, &Options{}, "", "models", "--provider", "mistral")
	require.NoError(t, err)
	require.Contains(t, out, "codestral-latest")
	require.NotContains(t, out, "gpt-4o")

	_, err = execute(t, &Options{}, "", "models", "--provider", "nobody")
	require.ErrorContains(t, err, `no models known for provider "nobody"`)
}

func TestRunPrintsEventsBeforeReport(t *testing.T) {
	out, err := execute(t, &Options{completer: &finishCompleter{}}, "", "run", "--config", writeTestConfig(t), "say", "hi")
	require.NoError(t, err)

	start := strings.Index(out, "[run reactive] say hi")
	thought := strings.Index(out, "[thought] easy")
	report := strings.Index(out, "[success] final_answer")
	require.GreaterOrEqual(t, start, 0)
	require.Greater(t, thought, start)
	require.Greater(t, report, thought)
}

func TestRunInteractiveFlushesEventsPerTask(t *testing.T) {
	out, err := execute(t, &Options{completer: &finishCompleter{}}, "one\ntwo\n",
		"run", "--config", writeTestConfig(t))
	require.NoError(t, err)

	firstReport := strings.Index(out, "answer 1")
	secondStart := strings.Index(out, "[run reactive] two")
	secondReport := strings.Index(out, "answer 2")
	require.Greater(t, strings.Index(out, "[run reactive] one"), -1)
	require.Less(t, strings.Index(out, "[run reactive] one"), firstReport)
	require.Greater(t, secondStart, firstReport)
	require.Greater(t, secondReport, secondStart)
}

func TestEventPrinterFlushAfterClose(t *testing.T) {
	events := make(chan agentloop.Event, 4)
	events <- agentloop.Event{Kind: agentloop.EventCritique, Data: map[string]any{"clean": true}}
	close(events)

	var buf bytes.Buffer
	p := startEventPrinter(&lockedWriter{w: &buf}, events, false)
	p.Flush()
	p.Wait()
	p.Flush()
	require.Equal(t, "[critique] no issues\n", buf.String())
}
