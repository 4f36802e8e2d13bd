package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/martinemde/codeagent/agentloop"
)

func fileTools(env *Environment) []tool {
	return []tool{
		{
			def: agentloop.ToolDefinition{
				Name:        "create_file",
				Description: "Create or overwrite a file with the given content. Parent directories are created.",
				Parameters: schema([]string{"path", "content"},
					param{"path", "string", "File path, absolute or relative to the working directory."},
					param{"content", "string", "Full file content."}),
			},
			fn: env.createFile,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "read_file",
				Description: "Read a file. Optionally restrict to an inclusive 1-based line range.",
				Parameters: schema([]string{"path"},
					param{"path", "string", "File to read."},
					param{"line_start", "integer", "First line to return (1-based)."},
					param{"line_end", "integer", "Last line to return (inclusive)."}),
			},
			fn: env.readFile,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "list_directory",
				Description: "List directory entries, directories first marked with a trailing slash.",
				Parameters: schema(nil,
					param{"path", "string", "Directory to list. Default: working directory."}),
			},
			fn: env.listDirectory,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "edit_file",
				Description: "Edit a file by line numbers. operation is insert (before line_start), replace or delete.",
				Parameters: schema([]string{"path", "operation"},
					param{"path", "string", "File to edit."},
					param{"operation", "string", "insert, replace or delete."},
					param{"line_range", "string", `Lines as "start-end" or "start".`},
					param{"line_start", "integer", "First affected line (1-based)."},
					param{"line_end", "integer", "Last affected line (inclusive)."},
					param{"content", "string", "Text to insert or use as replacement."}),
			},
			fn: env.editFile,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "search_in_file",
				Description: "Search a file with a regular expression and show matches with surrounding lines.",
				Parameters: schema([]string{"path", "pattern"},
					param{"path", "string", "File to search."},
					param{"pattern", "string", "Go regular expression."},
					param{"context_lines", "integer", "Lines of context around each match. Default: 2."}),
			},
			fn: env.searchInFile,
		},
	}
}

func (e *Environment) createFile(_ context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return "", err
	}
	resolved := e.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("Wrote %d characters to %s", len([]rune(content)), path), nil
}

// readLines returns the file split into lines and whether it ended with a
// newline.
func readLines(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("file %s does not exist", path)
		}
		return nil, false, err
	}
	text := string(data)
	if text == "" {
		return nil, false, nil
	}
	trailing := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n"), trailing, nil
}

func writeLines(path string, lines []string, trailing bool) error {
	text := strings.Join(lines, "\n")
	if trailing && len(lines) > 0 {
		text += "\n"
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func (e *Environment) readFile(_ context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	start, err := optionalLine(args, "line_start")
	if err != nil {
		return "", err
	}
	end, err := optionalLine(args, "line_end")
	if err != nil {
		return "", err
	}

	resolved := e.Resolve(path)
	if start == 0 && end == 0 {
		data, err := os.ReadFile(resolved)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("file %s does not exist", path)
			}
			return "", err
		}
		return string(data), nil
	}

	lines, _, err := readLines(resolved)
	if err != nil {
		return "", err
	}
	if start == 0 {
		start = 1
	}
	if end == 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", nil
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

func (e *Environment) listDirectory(_ context.Context, args map[string]any) (string, error) {
	path, _ := agentloop.GetStringArg(args, "path")
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(e.Resolve(path))
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	if len(entries) == 0 {
		return fmt.Sprintf("%s is empty", path), nil
	}
	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", entry.Name())
			continue
		}
		size := int64(0)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name(), size)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

var lineRangePattern = regexp.MustCompile(`^\s*(\d+)\s*(?:[-:,]\s*(\d+))?\s*$`)

// lineRange reads line_range ("s-e", "s" or [s, e]) or line_start/line_end.
func lineRange(args map[string]any) (int, int, error) {
	switch v := args["line_range"].(type) {
	case string:
		m := lineRangePattern.FindStringSubmatch(v)
		if m == nil {
			return 0, 0, fmt.Errorf("line_range %q must look like \"start-end\" or \"start\"", v)
		}
		start, _ := strconv.Atoi(m[1])
		end := start
		if m[2] != "" {
			end, _ = strconv.Atoi(m[2])
		}
		return start, end, nil
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return 0, 0, errors.New("line_range must hold one or two line numbers")
		}
		bounds := map[string]any{"line_start": v[0], "line_end": v[len(v)-1]}
		start, err := optionalLine(bounds, "line_start")
		if err != nil {
			return 0, 0, err
		}
		end, err := optionalLine(bounds, "line_end")
		return start, end, err
	}

	start, err := optionalLine(args, "line_start")
	if err != nil {
		return 0, 0, err
	}
	if start == 0 {
		return 0, 0, errors.New("line_range or line_start is required")
	}
	end, err := optionalLine(args, "line_end")
	if err != nil {
		return 0, 0, err
	}
	if end == 0 {
		end = start
	}
	return start, end, nil
}

func (e *Environment) editFile(_ context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	op, _ := agentloop.GetStringArg(args, "operation")
	if op != "insert" && op != "replace" && op != "delete" {
		return "", fmt.Errorf("operation must be one of insert, replace or delete, got %q", op)
	}
	start, end, err := lineRange(args)
	if err != nil {
		return "", err
	}
	if start <= 0 || end < start {
		return "", fmt.Errorf("invalid line range %d-%d", start, end)
	}

	resolved := e.Resolve(path)
	lines, trailing, err := readLines(resolved)
	if err != nil {
		return "", err
	}
	var replacement []string
	if content, ok := agentloop.GetStringArg(args, "content"); ok {
		replacement = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	var out []string
	switch op {
	case "insert":
		if start > len(lines)+1 {
			return "", fmt.Errorf("line_start %d is past the end of %s (%d lines)", start, path, len(lines))
		}
		if replacement == nil {
			return "", errors.New("content is required for insert")
		}
		out = append(out, lines[:start-1]...)
		out = append(out, replacement...)
		out = append(out, lines[start-1:]...)
	case "replace", "delete":
		if end > len(lines) {
			return "", fmt.Errorf("line range %d-%d is outside %s (%d lines)", start, end, path, len(lines))
		}
		if op == "replace" && replacement == nil {
			return "", errors.New("content is required for replace")
		}
		out = append(out, lines[:start-1]...)
		if op == "replace" {
			out = append(out, replacement...)
		}
		out = append(out, lines[end:]...)
	}

	if len(lines) == 0 {
		trailing = true
	}
	if err := writeLines(resolved, out, trailing); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("Applied %s to lines %d-%d of %s (now %d lines)", op, start, end, path, len(out)), nil
}

func (e *Environment) searchInFile(_ context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	contextLines := 2
	if n, ok := agentloop.GetIntArg(args, "context_lines"); ok && n >= 0 {
		contextLines = n
	}

	lines, _, err := readLines(e.Resolve(path))
	if err != nil {
		return "", err
	}

	var matches []int
	for i, line := range lines {
		if re.MatchString(line) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No matches for %q in %s", pattern, path), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d match(es) for %q in %s\n", len(matches), pattern, path)
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		matched[m] = true
	}
	last := -1
	for _, m := range matches {
		from := max(m-contextLines, 0)
		to := min(m+contextLines, len(lines)-1)
		if from <= last {
			from = last + 1
		} else if last >= 0 {
			sb.WriteString("--\n")
		}
		for i := from; i <= to; i++ {
			marker := " "
			if matched[i] {
				marker = ">"
			}
			fmt.Fprintf(&sb, "%s%d: %s\n", marker, i+1, lines[i])
		}
		if to > last {
			last = to
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
