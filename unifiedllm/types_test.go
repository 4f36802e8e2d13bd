package unifiedllm

import "testing"

func TestMessageConstructors(t *testing.T) {
	if m := SystemMessage("sys"); m.Role != RoleSystem || m.TextContent() != "sys" {
		t.Errorf("unexpected system message: %+v", m)
	}
	if m := UserMessage("hi"); m.Role != RoleUser || m.TextContent() != "hi" {
		t.Errorf("unexpected user message: %+v", m)
	}
	if m := AssistantMessage("yo"); m.Role != RoleAssistant || m.TextContent() != "yo" {
		t.Errorf("unexpected assistant message: %+v", m)
	}

	m := ToolResultMessage("read_file", "contents", false)
	if m.Role != RoleTool || m.Name != "read_file" {
		t.Errorf("unexpected tool message: %+v", m)
	}
	if m.TextContent() != "" {
		t.Errorf("tool results are not text parts, got %q", m.TextContent())
	}
}

func TestMessagePlainText(t *testing.T) {
	ok := ToolResultMessage("read_file", "package main", false)
	if got := ok.PlainText(); got != "Observation from read_file: package main" {
		t.Errorf("unexpected plain text %q", got)
	}

	failed := ToolResultMessage("run_shell", "exit 1", true)
	if got := failed.PlainText(); got != "Observation (error) from run_shell: exit 1" {
		t.Errorf("unexpected plain text %q", got)
	}

	multi := Message{Role: RoleUser, Content: []ContentPart{TextPart("a"), TextPart("b")}}
	if got := multi.PlainText(); got != "a\nb" {
		t.Errorf("unexpected plain text %q", got)
	}
}

func TestUsageAdd(t *testing.T) {
	got := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	want := Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestResponseText(t *testing.T) {
	resp := Response{Message: Message{Role: RoleAssistant, Content: []ContentPart{TextPart("Hello, "), TextPart("world")}}}
	if resp.Text() != "Hello, world" {
		t.Errorf("unexpected text %q", resp.Text())
	}
}
