package toolkit

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/codeagent/agentloop"
)

func readBack(t *testing.T, env *Environment, name string) string {
	t.Helper()
	data, err := os.ReadFile(env.Resolve(name))
	require.NoError(t, err)
	return string(data)
}

func TestCreateFile(t *testing.T) {
	d, env := newTestDispatcher(t)
	res := call(t, d, "create_file", map[string]any{"path": "pkg/hello.go", "content": "package pkg\n"})
	require.True(t, res.Success, res.ErrorDetail)
	require.Equal(t, "Wrote 12 characters to pkg/hello.go", res.Payload)
	require.Equal(t, "package pkg\n", readBack(t, env, "pkg/hello.go"))

	res = call(t, d, "create_file", map[string]any{"path": "empty.txt", "content": ""})
	require.True(t, res.Success)

	res = call(t, d, "create_file", map[string]any{"path": "x.txt"})
	require.Equal(t, agentloop.ErrorExecution, res.ErrorKind)
}

func TestReadFile(t *testing.T) {
	d, env := newTestDispatcher(t)
	writeFile(t, env, "a.txt", "one\ntwo\nthree\n")

	res := call(t, d, "read_file", map[string]any{"path": "a.txt"})
	require.Equal(t, "one\ntwo\nthree\n", res.Payload)

	res = call(t, d, "read_file", map[string]any{"path": "a.txt", "line_start": float64(2), "line_end": float64(3)})
	require.Equal(t, "two\nthree", res.Payload)

	res = call(t, d, "read_file", map[string]any{"path": "a.txt", "line_start": float64(2), "line_end": float64(99)})
	require.Equal(t, "two\nthree", res.Payload)

	res = call(t, d, "read_file", map[string]any{"path": "a.txt", "line_start": float64(0)})
	require.False(t, res.Success)
	require.Contains(t, res.ErrorDetail, "greater than 0")

	res = call(t, d, "read_file", map[string]any{"path": "missing.txt"})
	require.Equal(t, agentloop.ErrorExecution, res.ErrorKind)
	require.Contains(t, res.ErrorDetail, "does not exist")
}

func TestListDirectory(t *testing.T) {
	d, env := newTestDispatcher(t)
	writeFile(t, env, "b.txt", "12345")
	writeFile(t, env, "sub/inner.txt", "")
	writeFile(t, env, "a.txt", "1")

	res := call(t, d, "list_directory", map[string]any{})
	require.Equal(t, "sub/\na.txt (1 bytes)\nb.txt (5 bytes)", res.Payload)

	require.NoError(t, os.Mkdir(env.Resolve("void"), 0o755))
	res = call(t, d, "list_directory", map[string]any{"path": "void"})
	require.Equal(t, "void is empty", res.Payload)

	res = call(t, d, "list_directory", map[string]any{"path": "nope"})
	require.False(t, res.Success)
}

func TestEditFile(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    string
		message string
	}{
		{
			name:    "insert before line",
			args:    map[string]any{"operation": "insert", "line_start": float64(2), "content": "new"},
			want:    "a\nnew\nb\nc\n",
			message: "Applied insert to lines 2-2 of f.txt (now 4 lines)",
		},
		{
			name:    "append after last line",
			args:    map[string]any{"operation": "insert", "line_range": "4", "content": "d\n"},
			want:    "a\nb\nc\nd\n",
			message: "Applied insert to lines 4-4 of f.txt (now 4 lines)",
		},
		{
			name:    "replace range",
			args:    map[string]any{"operation": "replace", "line_range": "1-2", "content": "x"},
			want:    "x\nc\n",
			message: "Applied replace to lines 1-2 of f.txt (now 2 lines)",
		},
		{
			name:    "delete with array range",
			args:    map[string]any{"operation": "delete", "line_range": []any{float64(2), float64(3)}},
			want:    "a\n",
			message: "Applied delete to lines 2-3 of f.txt (now 1 lines)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, env := newTestDispatcher(t)
			writeFile(t, env, "f.txt", "a\nb\nc\n")
			args := map[string]any{"path": "f.txt"}
			for k, v := range tt.args {
				args[k] = v
			}
			res := call(t, d, "edit_file", args)
			require.True(t, res.Success, res.ErrorDetail)
			require.Equal(t, tt.message, res.Payload)
			require.Equal(t, tt.want, readBack(t, env, "f.txt"))
		})
	}
}

func TestEditFileErrors(t *testing.T) {
	d, env := newTestDispatcher(t)
	writeFile(t, env, "f.txt", "a\nb\n")

	for name, args := range map[string]map[string]any{
		"bad operation":      {"operation": "move", "line_start": float64(1)},
		"range past end":     {"operation": "delete", "line_range": "2-5"},
		"replace no content": {"operation": "replace", "line_start": float64(1)},
		"reversed range":     {"operation": "delete", "line_range": "2-1"},
		"no range":           {"operation": "delete"},
		"garbage range":      {"operation": "delete", "line_range": "two"},
	} {
		args["path"] = "f.txt"
		res := call(t, d, "edit_file", args)
		require.False(t, res.Success, name)
		require.Equal(t, agentloop.ErrorExecution, res.ErrorKind, name)
	}
	require.Equal(t, "a\nb\n", readBack(t, env, "f.txt"))
}

func TestSearchInFile(t *testing.T) {
	d, env := newTestDispatcher(t)
	writeFile(t, env, "s.go", "package s\n\nfunc A() {}\n\nfunc B() {}\n\n\n\n\nfunc C() {}\n")

	res := call(t, d, "search_in_file", map[string]any{"path": "s.go", "pattern": `^func [AB]`, "context_lines": float64(1)})
	require.True(t, res.Success, res.ErrorDetail)
	require.Equal(t, "2 match(es) for \"^func [AB]\" in s.go\n 2: \n>3: func A() {}\n 4: \n>5: func B() {}\n 6: ", res.Payload)

	res = call(t, d, "search_in_file", map[string]any{"path": "s.go", "pattern": `func [AC]`, "context_lines": float64(0)})
	require.Equal(t, "2 match(es) for \"func [AC]\" in s.go\n>3: func A() {}\n--\n>10: func C() {}", res.Payload)

	res = call(t, d, "search_in_file", map[string]any{"path": "s.go", "pattern": "zzz"})
	require.Equal(t, `No matches for "zzz" in s.go`, res.Payload)

	res = call(t, d, "search_in_file", map[string]any{"path": "s.go", "pattern": "("})
	require.Contains(t, res.ErrorDetail, "invalid pattern")
}
