package agentloop

import (
	"context"

	"go.uber.org/zap"

	"github.com/martinemde/codeagent/unifiedllm"
)

// LLM is the language model capability consumed by the engine.
// unifiedllm.ChatClient implements it.
type LLM interface {
	SendRecv(ctx context.Context, msgs []unifiedllm.Message) (*unifiedllm.Response, error)
	ExtractText(resp *unifiedllm.Response) (string, error)
	Chat(ctx context.Context, msgs []unifiedllm.Message) (string, error)
}

// Limits bound the controllers' loops.
type Limits struct {
	MaxReactIterations     int
	MaxPlanStepIterations  int
	MaxReflectionRevisions int
	// LoopDetectionWindow is the number of recent tool calls checked for
	// repetition; zero disables detection.
	LoopDetectionWindow int
}

// RunContext is everything a controller needs for one run. History may be
// replaced by the pre-query hook, so controllers must always read it through
// the RunContext rather than caching the pointer.
type RunContext struct {
	RunID      string
	History    *History
	Dispatcher *Dispatcher
	LLM        LLM
	Limits     Limits
	Emitter    *EventEmitter
	Logger     *zap.Logger

	// BeforeQuery runs before every LLM query.
	BeforeQuery func(rc *RunContext)

	queries int
}

func (rc *RunContext) logger() *zap.Logger {
	if rc.Logger == nil {
		return zap.NewNop()
	}
	return rc.Logger
}

func (rc *RunContext) emit(kind EventKind, data map[string]any) {
	rc.Emitter.Emit(rc.RunID, kind, data)
}

// Append adds msg to the current history and returns the stored copy.
func (rc *RunContext) Append(msg Message) Message {
	return rc.History.MustAppend(msg)
}

// Query sends the full history to the model.
func (rc *RunContext) Query(ctx context.Context) (string, error) {
	if rc.BeforeQuery != nil {
		rc.BeforeQuery(rc)
	}
	return rc.chat(ctx, rc.History.Messages())
}

// QueryWith sends an explicit, bounded message list to the model.
func (rc *RunContext) QueryWith(ctx context.Context, msgs []Message) (string, error) {
	if rc.BeforeQuery != nil {
		rc.BeforeQuery(rc)
	}
	return rc.chat(ctx, msgs)
}

func (rc *RunContext) chat(ctx context.Context, msgs []Message) (string, error) {
	rc.queries++
	text, err := rc.LLM.Chat(ctx, ToLLMMessages(msgs))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		rc.logger().Warn("llm query failed", zap.String("run_id", rc.RunID), zap.Error(err))
		return "", &LLMError{Op: "chat", Err: err}
	}
	return text, nil
}

// Queries returns the number of LLM queries issued so far.
func (rc *RunContext) Queries() int {
	return rc.queries
}

// Execute dispatches call and reports progress events.
func (rc *RunContext) Execute(ctx context.Context, call ToolCall) ToolResult {
	rc.emit(EventToolCallStart, map[string]any{
		"tool":      call.Name,
		"arguments": call.Arguments,
	})
	result := rc.Dispatcher.Dispatch(ctx, call)
	data := map[string]any{
		"tool":     call.Name,
		"success":  result.Success,
		"duration": result.Duration.String(),
	}
	if result.Success {
		data["output"] = result.Payload
	} else {
		data["error_kind"] = string(result.ErrorKind)
		data["error"] = result.ErrorDetail
	}
	rc.emit(EventToolCallEnd, data)
	return result
}
