package toolkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/codeagent/agentloop"
)

func newTestEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment(t.TempDir())
	require.NoError(t, err)
	return env
}

func newTestDispatcher(t *testing.T) (*agentloop.Dispatcher, *Environment) {
	t.Helper()
	env := newTestEnv(t)
	d := agentloop.NewDispatcher(agentloop.WithDefaultTimeout(10 * time.Second))
	Register(d, env, Options{})
	return d, env
}

func call(t *testing.T, d *agentloop.Dispatcher, name string, args map[string]any) agentloop.ToolResult {
	t.Helper()
	return d.Dispatch(context.Background(), agentloop.ToolCall{Name: name, Arguments: args})
}

func writeFile(t *testing.T, env *Environment, name, content string) string {
	t.Helper()
	path := env.Resolve(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegisterAddsEveryTool(t *testing.T) {
	d := agentloop.NewDispatcher()
	names := Register(d, newTestEnv(t), Options{Timeouts: map[string]time.Duration{"run_tests": time.Minute}})
	require.ElementsMatch(t, []string{
		"create_file", "read_file", "list_directory", "edit_file", "search_in_file",
		"run_python", "run_shell", "run_tests", "run_linter",
		"parse_ast", "get_function_signature", "find_dependencies", "get_code_metrics",
	}, names)
	require.Equal(t, len(names), d.Count())

	tool, ok := d.Get("run_tests")
	require.True(t, ok)
	require.Equal(t, time.Minute, tool.Timeout)
	for _, def := range d.Definitions() {
		require.NotEmpty(t, def.Description, def.Name)
		require.Equal(t, "object", def.Parameters["type"], def.Name)
	}
}

func TestNewEnvironmentRejectsFiles(t *testing.T) {
	env := newTestEnv(t)
	file := writeFile(t, env, "plain.txt", "x")
	_, err := NewEnvironment(file)
	require.ErrorContains(t, err, "not a directory")

	_, err = NewEnvironment(filepath.Join(env.WorkingDir, "missing"))
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	env := &Environment{WorkingDir: "/work"}
	require.Equal(t, "/work/a/b.go", env.Resolve("a/b.go"))
	require.Equal(t, "/etc/hosts", env.Resolve("/etc/../etc/hosts"))
}

func TestRequireString(t *testing.T) {
	_, err := requireString(map[string]any{}, "path")
	require.ErrorContains(t, err, "is required")
	_, err = requireString(map[string]any{"path": 3}, "path")
	require.ErrorContains(t, err, "must be a string")
	_, err = requireString(map[string]any{"path": ""}, "path")
	require.ErrorContains(t, err, "must not be empty")
	s, err := requireString(map[string]any{"content": ""}, "content")
	require.NoError(t, err)
	require.Empty(t, s)
}
