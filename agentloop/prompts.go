package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

const actionProtocol = `Reply with exactly one JSON object and nothing else:
{"thought": "<your reasoning>", "action": "<tool name>", "action_input": {<tool arguments>}}

When the task is done, reply with:
{"thought": "<why you are done>", "action": "finish", "action_input": {"answer": "<final answer>"}}
Use "task_complete" with {"message": "..."} instead when you changed files and only need to report completion.
Call one tool per reply and wait for its observation before deciding the next step.`

// PromptContext carries the host details rendered into the system prompt.
type PromptContext struct {
	WorkingDir       string
	Model            string
	UserInstructions string
	// ProjectDocs is loaded with DiscoverProjectDocs when empty and
	// WorkingDir is set.
	ProjectDocs string
	Now         func() time.Time
}

// BuildSystemPrompt renders the agent's system prompt for the given tools.
func BuildSystemPrompt(defs []ToolDefinition, pc PromptContext) string {
	var sb strings.Builder
	sb.WriteString("You are a coding assistant. You read, write, run and analyze code by calling tools.\n\n")

	sb.WriteString("# Tools\n\n")
	for _, def := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
		if params := describeParameters(def.Parameters); params != "" {
			fmt.Fprintf(&sb, "  arguments: %s\n", params)
		}
	}
	sb.WriteString("\n# Protocol\n\n")
	sb.WriteString(actionProtocol)

	if pc.WorkingDir != "" {
		sb.WriteString("\n\n")
		sb.WriteString(BuildEnvironmentContext(pc.WorkingDir, pc.Model, pc.Now))
		docs := pc.ProjectDocs
		if docs == "" {
			docs = DiscoverProjectDocs(pc.WorkingDir)
		}
		if docs != "" {
			sb.WriteString("\n\n# Project Instructions\n\n")
			sb.WriteString(docs)
		}
	}
	if pc.UserInstructions != "" {
		sb.WriteString("\n\n# User Instructions\n\n")
		sb.WriteString(pc.UserInstructions)
	}
	return sb.String()
}

// describeParameters renders a JSON schema's properties as "name (type, required)".
func describeParameters(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		typ := "any"
		if p, ok := props[name].(map[string]any); ok {
			if t, ok := p["type"].(string); ok {
				typ = t
			}
		}
		if required[name] {
			parts = append(parts, fmt.Sprintf("%s (%s, required)", name, typ))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, typ))
		}
	}
	return strings.Join(parts, ", ")
}

// BuildEnvironmentContext generates the environment block of the system prompt.
func BuildEnvironmentContext(workingDir, model string, now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	branch := gitBranch(workingDir)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", branch != "")
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md files from the git root (or workingDir)
// down to workingDir, capped at 32KB in total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	total := 0
	for _, dir := range collectPathHierarchy(root, workingDir) {
		content, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
		if err != nil {
			continue
		}
		remaining := maxProjectDocBytes - total
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("## AGENTS.md (from %s)\n\n%s", dir, text))
		total += len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}
	if root == target {
		return dirs
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == "" {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	return gitOutput(dir, "rev-parse", "--show-toplevel")
}

func gitBranch(dir string) string {
	return gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// planPrompt asks for an ordered list of steps without tool use.
func planPrompt(problem string) string {
	return fmt.Sprintf(`Break the following task into a short ordered list of concrete steps.
Do not call any tools yet.
Reply with a JSON array of step descriptions, for example ["Read main.go", "Fix the off-by-one", "Run the tests"].

Task:
%s`, problem)
}

// stepPrompt frames one plan step with the whole plan and earlier results.
func stepPrompt(problem string, plan *Plan, current int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall task:\n%s\n\nPlan:\n", problem)
	for i, step := range plan.Steps {
		marker := " "
		if i == current {
			marker = ">"
		}
		fmt.Fprintf(&sb, "%s %d. [%s] %s\n", marker, i+1, step.Status, step.Description)
	}

	var prior []string
	for i := 0; i < current; i++ {
		if r := plan.Steps[i].Result; r != "" {
			prior = append(prior, fmt.Sprintf("Step %d result: %s", i+1, r))
		}
	}
	if len(prior) > 0 {
		sb.WriteString("\nResults so far:\n")
		sb.WriteString(strings.Join(prior, "\n"))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nWork only on step %d: %s\nFinish with the \"finish\" action once this step is done; its answer becomes the step result.",
		current+1, plan.Steps[current].Description)
	return sb.String()
}

// critiquePrompt asks for a structured review of a draft answer.
func critiquePrompt(problem, draft string) string {
	return fmt.Sprintf(`Review the answer below to the task. Report problems in four categories.
Use an empty string for a category with no problems.
Reply with one JSON object:
{"factual_error": "", "logic_gap": "", "efficiency": "", "missing_info": ""}

Task:
%s

Answer:
%s`, problem, draft)
}

// revisePrompt asks for a revised answer addressing the critique.
func revisePrompt(problem, draft string, c ReflectionCritique) string {
	findings, _ := json.MarshalIndent(c, "", "  ")
	return fmt.Sprintf(`Revise your answer to the task so it addresses every finding below. You may call tools again.

Task:
%s

Previous answer:
%s

Findings:
%s`, problem, draft, findings)
}

// formatErrorObservation is fed back when a reply cannot be parsed.
func formatErrorObservation(err error) string {
	return fmt.Sprintf("Observation: your reply could not be parsed (%v). %s", err, actionProtocol)
}
