package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ToolCall is a request to invoke a named tool, produced by a controller
// from an assistant message.
type ToolCall struct {
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
	MessageIndex int            `json:"message_index"`
}

// ErrorKind classifies a failed tool dispatch.
type ErrorKind string

const (
	ErrorKindNone  ErrorKind = ""
	ErrorNotFound  ErrorKind = "not_found"
	ErrorExecution ErrorKind = "execution_error"
	ErrorTimeout   ErrorKind = "timeout"
)

// ToolResult is the outcome of a dispatch. It is produced only by the
// Dispatcher and never carries a raw error.
type ToolResult struct {
	Name         string        `json:"name"`
	Success      bool          `json:"success"`
	Payload      string        `json:"payload,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	Duration     time.Duration `json:"duration"`
	MessageIndex int           `json:"message_index"`
}

// Observation renders the result as the text fed back to the model.
func (r ToolResult) Observation() string {
	if r.Success {
		return r.Payload
	}
	switch r.ErrorKind {
	case ErrorNotFound:
		return fmt.Sprintf("Error: unknown tool %q", r.Name)
	case ErrorTimeout:
		return fmt.Sprintf("Error: tool %s timed out: %s", r.Name, r.ErrorDetail)
	default:
		return fmt.Sprintf("Error: tool %s failed: %s", r.Name, r.ErrorDetail)
	}
}

// Capability is a single tool implementation.
type Capability interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, args map[string]any) (string, error)

// Invoke calls f.
func (f CapabilityFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its capability.
type RegisteredTool struct {
	Definition ToolDefinition
	Capability Capability
	// Timeout overrides the dispatcher default when positive.
	Timeout time.Duration
}

// Recorder receives engine measurements. observability.Metrics implements it.
type Recorder interface {
	RecordToolCall(tool, outcome string, duration time.Duration)
	RecordCompression(originalCount, compressedCount int)
	RecordRun(strategy, status string, duration time.Duration, iterations int)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDefaultTimeout sets the timeout for tools registered without one.
func WithDefaultTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.defaultTimeout = d }
}

// WithOutputLimits overrides per-tool character and line limits.
func WithOutputLimits(charLimits, lineLimits map[string]int) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.charLimits = charLimits
		disp.lineLimits = lineLimits
	}
}

// WithDispatcherLogger attaches a logger.
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithDispatcherRecorder attaches a metrics recorder.
func WithDispatcherRecorder(r Recorder) DispatcherOption {
	return func(disp *Dispatcher) { disp.recorder = r }
}

// Dispatcher maps tool names to capabilities and turns every invocation into
// a ToolResult. Registration happens during setup only; the registry is not
// synchronized and a Dispatcher belongs to a single conversation.
type Dispatcher struct {
	tools          map[string]RegisteredTool
	defaultTimeout time.Duration
	charLimits     map[string]int
	lineLimits     map[string]int
	logger         *zap.Logger
	recorder       Recorder
}

// NewDispatcher creates an empty dispatcher with a 60s default timeout.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tools:          make(map[string]RegisteredTool),
		defaultTimeout: 60 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or replaces a tool.
func (d *Dispatcher) Register(tool RegisteredTool) {
	d.tools[tool.Definition.Name] = tool
}

// Get returns a registered tool by name.
func (d *Dispatcher) Get(name string) (RegisteredTool, bool) {
	t, ok := d.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns tool definitions sorted by name.
func (d *Dispatcher) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(d.tools))
	for _, name := range d.Names() {
		defs = append(defs, d.tools[name].Definition)
	}
	return defs
}

// Count returns the number of registered tools.
func (d *Dispatcher) Count() int {
	return len(d.tools)
}

// Dispatch invokes the named tool. It never returns an error: unknown tools,
// capability errors, panics and timeouts all become failed ToolResults.
// Failed dispatches are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{Name: call.Name, MessageIndex: call.MessageIndex}

	tool, ok := d.tools[call.Name]
	if !ok {
		result.ErrorKind = ErrorNotFound
		result.ErrorDetail = fmt.Sprintf("no tool named %q is registered", call.Name)
		return d.finish(result, start)
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool panicked",
					zap.String("tool", call.Name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out, err := tool.Capability.Invoke(callCtx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		switch {
		case o.err == nil:
			result.Success = true
			result.Payload = TruncateToolOutput(o.out, call.Name, d.charLimits, d.lineLimits)
		case errors.Is(o.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil:
			result.ErrorKind = ErrorTimeout
			result.ErrorDetail = fmt.Sprintf("exceeded %s", timeout)
		default:
			result.ErrorKind = ErrorExecution
			result.ErrorDetail = o.err.Error()
		}
	case <-callCtx.Done():
		// The capability ignored cancellation; its goroutine is abandoned.
		if ctx.Err() != nil {
			result.ErrorKind = ErrorExecution
			result.ErrorDetail = ctx.Err().Error()
		} else {
			result.ErrorKind = ErrorTimeout
			result.ErrorDetail = fmt.Sprintf("exceeded %s", timeout)
		}
	}

	return d.finish(result, start)
}

func (d *Dispatcher) finish(result ToolResult, start time.Time) ToolResult {
	result.Duration = time.Since(start)
	outcome := "ok"
	if !result.Success {
		outcome = string(result.ErrorKind)
		d.logger.Info("tool dispatch failed",
			zap.String("tool", result.Name),
			zap.String("kind", outcome),
			zap.String("detail", result.ErrorDetail),
			zap.Duration("elapsed", result.Duration))
	} else {
		d.logger.Debug("tool dispatched",
			zap.String("tool", result.Name),
			zap.Int("payload_bytes", len(result.Payload)),
			zap.Duration("elapsed", result.Duration))
	}
	if d.recorder != nil {
		d.recorder.RecordToolCall(result.Name, outcome, result.Duration)
	}
	return result
}

// GetStringArg extracts a string argument.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument. Numeric strings are accepted
// because models frequently quote numbers.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
