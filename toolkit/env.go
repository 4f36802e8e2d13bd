package toolkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the outcome of one external process.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Format renders the result the way execution tools report it to the model.
// A non-zero exit code is part of the payload, not an error.
func (r ExecResult) Format() string {
	var sb strings.Builder
	if out := strings.TrimRight(r.Stdout, "\n"); out != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(out)
		sb.WriteString("\n")
	}
	if errOut := strings.TrimRight(r.Stderr, "\n"); errOut != "" {
		sb.WriteString("stderr:\n")
		sb.WriteString(errOut)
		sb.WriteString("\n")
	}
	if r.TimedOut {
		sb.WriteString("[process killed after timeout]\n")
	}
	fmt.Fprintf(&sb, "returncode: %d", r.ExitCode)
	return sb.String()
}

// sensitiveEnvSuffixes mark variables kept out of child processes.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "GOCACHE": true, "GOFLAGS": true,
	"VIRTUAL_ENV": true, "PYENV_ROOT": true, "PYTHONPATH": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// filterEnvironment drops credentials from environ.
func filterEnvironment(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// Environment is where file and process tools operate. Relative paths are
// resolved against WorkingDir.
type Environment struct {
	WorkingDir string
	// Shell runs run_shell commands; defaults to /bin/bash.
	Shell string
}

// NewEnvironment creates an environment rooted at workingDir, defaulting to
// the process working directory.
func NewEnvironment(workingDir string) (*Environment, error) {
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workingDir = wd
	}
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", abs)
	}
	shell := "/bin/bash"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
	}
	return &Environment{WorkingDir: abs, Shell: shell}, nil
}

// Resolve returns an absolute, cleaned path.
func (e *Environment) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.WorkingDir, path)
}

// Exec runs name with args in dir (WorkingDir when empty). The child gets its
// own process group so a timeout kills everything it spawned. Failing to
// start the process is an error; a non-zero exit is not.
func (e *Environment) Exec(ctx context.Context, dir string, stdin string, name string, args ...string) (ExecResult, error) {
	if dir == "" {
		dir = e.WorkingDir
	} else {
		dir = e.Resolve(dir)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = filterEnvironment(os.Environ())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("start %s: %w", name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var (
		waitErr  error
		timedOut bool
	)
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		timedOut = true
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		waitErr = <-done
	}

	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}
	var exitErr *exec.ExitError
	switch {
	case timedOut:
		res.ExitCode = -1
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("wait %s: %w", name, waitErr)
	}
	return res, nil
}

// Shellout runs command through the environment's shell.
func (e *Environment) Shellout(ctx context.Context, command string) (ExecResult, error) {
	flag := "-c"
	if runtime.GOOS == "windows" {
		flag = "/c"
	}
	return e.Exec(ctx, "", "", e.Shell, flag, command)
}
