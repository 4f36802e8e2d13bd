// Package toolkit provides the local tools a coding agent calls: file
// manipulation, process execution and Go source analysis. Every tool is an
// agentloop.Capability registered on a Dispatcher.
package toolkit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/codeagent/agentloop"
)

// Options configures the registered tools.
type Options struct {
	// PythonBin runs run_python and pytest/flake8 modules; defaults to python3.
	PythonBin string
	// Timeouts overrides the dispatcher default per tool.
	Timeouts map[string]time.Duration
	Logger   *zap.Logger
}

type toolFunc func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	def agentloop.ToolDefinition
	fn  toolFunc
}

// Register adds every toolkit tool to d and returns their names.
func Register(d *agentloop.Dispatcher, env *Environment, opts Options) []string {
	if opts.PythonBin == "" {
		opts.PythonBin = "python3"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var all []tool
	all = append(all, fileTools(env)...)
	all = append(all, execTools(env, opts)...)
	all = append(all, analysisTools(env)...)

	names := make([]string, 0, len(all))
	for _, t := range all {
		d.Register(agentloop.RegisteredTool{
			Definition: t.def,
			Capability: agentloop.CapabilityFunc(t.fn),
			Timeout:    opts.Timeouts[t.def.Name],
		})
		names = append(names, t.def.Name)
	}
	opts.Logger.Debug("toolkit registered", zap.Strings("tools", names), zap.String("working_dir", env.WorkingDir))
	return names
}

type param struct {
	name string
	typ  string
	desc string
}

func schema(required []string, params ...param) map[string]any {
	props := make(map[string]any, len(params))
	for _, p := range params {
		props[p.name] = map[string]any{"type": p.typ, "description": p.desc}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func requireString(args map[string]any, key string) (string, error) {
	v, present := args[key]
	if !present {
		return "", fmt.Errorf("argument %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" && key != "content" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return s, nil
}

// optionalLine reads a 1-based line argument; absent yields 0.
func optionalLine(args map[string]any, key string) (int, error) {
	if _, present := args[key]; !present {
		return 0, nil
	}
	n, ok := agentloop.GetIntArg(args, key)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%s must be an integer greater than 0", key)
	}
	return n, nil
}
