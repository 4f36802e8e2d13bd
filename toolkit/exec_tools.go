package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/martinemde/codeagent/agentloop"
)

func execTools(env *Environment, opts Options) []tool {
	r := &runner{env: env, python: opts.PythonBin, logger: opts.Logger}
	return []tool{
		{
			def: agentloop.ToolDefinition{
				Name:        "run_python",
				Description: "Run Python code or a Python script and report stdout, stderr and returncode.",
				Parameters: schema(nil,
					param{"code", "string", "Python source to run."},
					param{"path", "string", "Script to run instead of code."}),
			},
			fn: r.runPython,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "run_shell",
				Description: "Run a shell command in the working directory and report stdout, stderr and returncode.",
				Parameters: schema([]string{"command"},
					param{"command", "string", "Command line passed to the shell."}),
			},
			fn: r.runShell,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "run_tests",
				Description: "Run tests. The framework is picked from the path (go test for Go, pytest otherwise) unless given.",
				Parameters: schema([]string{"path"},
					param{"path", "string", "Test file, package directory or Go package pattern such as ./..."},
					param{"test_path", "string", "Alias for path."},
					param{"framework", "string", "go, pytest or unittest."}),
			},
			fn: r.runTests,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "run_linter",
				Description: "Lint a file or directory. The linter is picked from the path (go vet for Go, flake8 otherwise) unless given.",
				Parameters: schema([]string{"path"},
					param{"path", "string", "File or directory to lint."},
					param{"tool", "string", "gofmt, go_vet, flake8 or black."}),
			},
			fn: r.runLinter,
		},
	}
}

type runner struct {
	env    *Environment
	python string
	logger *zap.Logger
}

func (r *runner) exec(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	r.logger.Debug("running process", zap.String("name", name), zap.Strings("args", args))
	res, err := r.env.Exec(ctx, "", stdin, name, args...)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		// Surface as a timeout so the dispatcher classifies it.
		return "", fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return res.Format(), nil
}

func (r *runner) runPython(ctx context.Context, args map[string]any) (string, error) {
	if code, ok := agentloop.GetStringArg(args, "code"); ok && code != "" {
		return r.exec(ctx, code, r.python, "-")
	}
	if path, ok := agentloop.GetStringArg(args, "path"); ok && path != "" {
		resolved := r.env.Resolve(path)
		if _, err := os.Stat(resolved); err != nil {
			return "", fmt.Errorf("script %s: %w", path, err)
		}
		return r.exec(ctx, "", r.python, resolved)
	}
	return "", fmt.Errorf("either code or path is required")
}

func (r *runner) runShell(ctx context.Context, args map[string]any) (string, error) {
	command, err := requireString(args, "command")
	if err != nil {
		return "", err
	}
	res, err := r.env.Shellout(ctx, command)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("run_shell: %w", ctx.Err())
	}
	return res.Format(), nil
}

// isGoTarget reports whether path names Go code: a .go file, a package
// pattern like ./... or a directory holding .go files.
func (r *runner) isGoTarget(path string) bool {
	if strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "...") {
		return true
	}
	info, err := os.Stat(r.env.Resolve(path))
	if err != nil || !info.IsDir() {
		return false
	}
	matches, _ := filepath.Glob(filepath.Join(r.env.Resolve(path), "*.go"))
	if len(matches) > 0 {
		return true
	}
	_, err = os.Stat(filepath.Join(r.env.Resolve(path), "go.mod"))
	return err == nil
}

// goPackage turns a file or directory into an argument for the go tool.
func (r *runner) goPackage(path string) string {
	if strings.HasSuffix(path, "...") {
		return path
	}
	if strings.HasSuffix(path, ".go") {
		path = filepath.Dir(path)
	}
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(r.env.WorkingDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	if path == "." || filepath.IsAbs(path) || strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return path
	}
	return "./" + path
}

func (r *runner) runTests(ctx context.Context, args map[string]any) (string, error) {
	path, _ := agentloop.GetStringArg(args, "path")
	if path == "" {
		path, _ = agentloop.GetStringArg(args, "test_path")
	}
	if path == "" {
		return "", fmt.Errorf("argument %q is required", "path")
	}
	framework, _ := agentloop.GetStringArg(args, "framework")
	if framework == "" || framework == "auto" {
		framework = "pytest"
		if r.isGoTarget(path) {
			framework = "go"
		}
	}
	switch framework {
	case "go":
		return r.exec(ctx, "", "go", "test", r.goPackage(path))
	case "pytest":
		return r.exec(ctx, "", r.python, "-m", "pytest", "-q", r.env.Resolve(path))
	case "unittest":
		return r.exec(ctx, "", r.python, "-m", "unittest", r.env.Resolve(path))
	default:
		return "", fmt.Errorf("unsupported test framework %q", framework)
	}
}

func (r *runner) runLinter(ctx context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	linter, _ := agentloop.GetStringArg(args, "tool")
	if linter == "" || linter == "auto" {
		linter = "flake8"
		if r.isGoTarget(path) {
			linter = "go_vet"
		}
	}

	switch linter {
	case "go_vet", "vet":
		return r.exec(ctx, "", "go", "vet", r.goPackage(path))
	case "gofmt":
		return r.exec(ctx, "", "gofmt", "-l", r.env.Resolve(path))
	case "flake8":
		return r.exec(ctx, "", r.python, "-m", "flake8", r.env.Resolve(path))
	case "black":
		return r.exec(ctx, "", r.python, "-m", "black", "--check", r.env.Resolve(path))
	default:
		return "", fmt.Errorf("unsupported linter %q", linter)
	}
}
