package agentloop

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxSummaryErrors       = 10
	maxSummaryCompleted    = 5
	maxLinesPerMessage     = 2
	maxSummaryEntryBytes   = 160
	completionActionFinish = "finish"
	completionActionDone   = "task_complete"
)

var (
	filePathPattern = regexp.MustCompile(`(?:\.{1,2}/|/)?(?:[\w.-]+/)*[\w-][\w.-]*\.(?:go|mod|sum|py|pyi|js|jsx|ts|tsx|java|kt|c|h|cc|cpp|hpp|rs|rb|php|cs|swift|scala|sh|bash|sql|html|css|scss|md|rst|txt|json|yaml|yml|toml|ini|cfg|xml|proto|csv)\b`)

	completionActionPattern = regexp.MustCompile(`"action"\s*:\s*"(finish|task_complete)"`)

	errorKeywords      = []string{"error", "Error", "ERROR", "failed", "Failed", "exception", "Exception", "Traceback"}
	completionKeywords = []string{"completed", "Completed", "successfully", "Successfully"}

	pathArgumentKeys = []string{"path", "file_path", "test_path"}
)

// CompletionSignals records whether a replaced range reached completion.
type CompletionSignals struct {
	TaskComplete bool `json:"task_complete"`
	FinalAnswer  bool `json:"final_answer"`
}

// CompressionSummary is the structured digest of a replaced message range.
type CompressionSummary struct {
	FilePaths     []string          `json:"file_paths"`
	ToolsInvoked  []string          `json:"tools_invoked"`
	Errors        []string          `json:"errors"`
	Completion    CompletionSignals `json:"completion"`
	Completed     []string          `json:"completed"`
	ReplacedCount int               `json:"replaced_count"`
}

func (s CompressionSummary) clone() CompressionSummary {
	s.FilePaths = append([]string(nil), s.FilePaths...)
	s.ToolsInvoked = append([]string(nil), s.ToolsInvoked...)
	s.Errors = append([]string(nil), s.Errors...)
	s.Completed = append([]string(nil), s.Completed...)
	return s
}

// Empty reports whether nothing was extracted.
func (s CompressionSummary) Empty() bool {
	return len(s.FilePaths) == 0 && len(s.ToolsInvoked) == 0 && len(s.Errors) == 0 &&
		len(s.Completed) == 0 && !s.Completion.TaskComplete && !s.Completion.FinalAnswer
}

// Text renders the summary in a fixed section order.
func (s CompressionSummary) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Compressed context: %d earlier messages]\n", s.ReplacedCount)
	if s.Empty() {
		fmt.Fprintf(&sb, "Earlier conversation: %d messages exchanged; no files, tools or errors recorded.", s.ReplacedCount)
		return sb.String()
	}
	if len(s.FilePaths) > 0 {
		fmt.Fprintf(&sb, "Files involved: %s\n", strings.Join(s.FilePaths, ", "))
	}
	if len(s.ToolsInvoked) > 0 {
		fmt.Fprintf(&sb, "Tools used: %s\n", strings.Join(s.ToolsInvoked, ", "))
	}
	if len(s.Errors) > 0 {
		sb.WriteString("Errors encountered:\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}
	switch {
	case s.Completion.FinalAnswer && s.Completion.TaskComplete:
		sb.WriteString("Completion: final answer given and task marked complete\n")
	case s.Completion.FinalAnswer:
		sb.WriteString("Completion: final answer given\n")
	case s.Completion.TaskComplete:
		sb.WriteString("Completion: task marked complete\n")
	}
	if len(s.Completed) > 0 {
		sb.WriteString("Completed work:\n")
		for _, c := range s.Completed {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CompressionStatus reports the effect of a compression.
type CompressionStatus struct {
	OriginalCount    int     `json:"original_count"`
	CompressedCount  int     `json:"compressed_count"`
	CompressionRatio float64 `json:"compression_ratio"`
	MessagesSaved    int     `json:"messages_saved"`
}

// NewCompressionStatus computes ratio = compressed/original (1.0 when
// original is zero) and saved = original - compressed.
func NewCompressionStatus(originalCount, compressedCount int) CompressionStatus {
	ratio := 1.0
	if originalCount > 0 {
		ratio = float64(compressedCount) / float64(originalCount)
	}
	return CompressionStatus{
		OriginalCount:    originalCount,
		CompressedCount:  compressedCount,
		CompressionRatio: ratio,
		MessagesSaved:    originalCount - compressedCount,
	}
}

// Compressor bounds history length. When a history exceeds thresholdA
// messages it keeps the system prompt and the last keepB messages and
// replaces everything in between with one summary message.
type Compressor struct {
	thresholdA int
	keepB      int
	now        func() time.Time
}

// NewCompressor validates 0 <= keepB < thresholdA.
func NewCompressor(thresholdA, keepB int) (*Compressor, error) {
	if keepB < 0 || thresholdA <= keepB {
		return nil, fmt.Errorf("%w (threshold_a=%d, keep_last_b=%d)", ErrInvalidCompression, thresholdA, keepB)
	}
	return &Compressor{thresholdA: thresholdA, keepB: keepB, now: time.Now}, nil
}

// Threshold returns a.
func (c *Compressor) Threshold() int { return c.thresholdA }

// KeepLast returns b.
func (c *Compressor) KeepLast() int { return c.keepB }

// ShouldCompress reports whether h holds more than a messages.
func (c *Compressor) ShouldCompress(h *History) bool {
	return h.Len() > c.thresholdA
}

// Compress returns a new history of the form
// [system prompt, summary, last b messages]. When there is nothing between
// the system prompt and the kept tail, h itself is returned unchanged.
func (c *Compressor) Compress(h *History) *History {
	n := h.Len()
	cut := n - c.keepB
	if cut-1 <= 0 {
		return h
	}

	replaced := h.Slice(1, cut)
	summary := ExtractKeyInformation(replaced)

	out := make([]Message, 0, c.keepB+2)
	out = append(out, h.At(0))
	out = append(out, Message{
		Index:     replaced[0].Index,
		Role:      RoleUser,
		Content:   summary.Text(),
		Summary:   &summary,
		Timestamp: c.now(),
	})
	out = append(out, h.Slice(cut, n)...)

	return fromMessages(out, h.nextIndex, h.now)
}

// ExtractKeyInformation digests msgs deterministically: the same input always
// yields the same summary. A summary message inside msgs is folded in first.
func ExtractKeyInformation(msgs []Message) CompressionSummary {
	var (
		summary   CompressionSummary
		files     = map[string]struct{}{}
		toolsSeen = map[string]struct{}{}
	)
	addTool := func(name string) {
		if _, ok := toolsSeen[name]; ok || name == "" {
			return
		}
		toolsSeen[name] = struct{}{}
		summary.ToolsInvoked = append(summary.ToolsInvoked, name)
	}

	for _, m := range msgs {
		if m.Summary != nil {
			prev := m.Summary
			for _, f := range prev.FilePaths {
				files[f] = struct{}{}
			}
			for _, t := range prev.ToolsInvoked {
				addTool(t)
			}
			summary.Errors = append(summary.Errors, prev.Errors...)
			summary.Completed = append(summary.Completed, prev.Completed...)
			summary.Completion.FinalAnswer = summary.Completion.FinalAnswer || prev.Completion.FinalAnswer
			summary.Completion.TaskComplete = summary.Completion.TaskComplete || prev.Completion.TaskComplete
			summary.ReplacedCount += prev.ReplacedCount
			continue
		}
		summary.ReplacedCount++

		if tc := m.ToolCall; tc != nil {
			addTool(tc.Name)
			for _, key := range pathArgumentKeys {
				if p, ok := GetStringArg(tc.Arguments, key); ok && strings.TrimSpace(p) != "" {
					files[strings.TrimSpace(p)] = struct{}{}
				}
			}
		}

		if m.Role == RoleAssistant {
			for _, match := range completionActionPattern.FindAllStringSubmatch(m.Content, -1) {
				switch match[1] {
				case completionActionFinish:
					summary.Completion.FinalAnswer = true
				case completionActionDone:
					summary.Completion.TaskComplete = true
				}
			}
		}

		for _, p := range filePaths(m.Content) {
			files[p] = struct{}{}
		}

		if tr := m.ToolResult; tr != nil && !tr.Success {
			entry := fmt.Sprintf("%s: %s: %s", tr.Name, tr.ErrorKind, tr.ErrorDetail)
			summary.Errors = append(summary.Errors, clip(entry))
		} else if m.Role != RoleSystem {
			for _, line := range matchingLines(m.Content, errorKeywords, maxLinesPerMessage) {
				summary.Errors = append(summary.Errors, clip(line))
			}
		}

		if m.Role == RoleAssistant || m.Role == RoleTool {
			for _, line := range matchingLines(m.Content, completionKeywords, maxLinesPerMessage) {
				summary.Completed = append(summary.Completed, clip(line))
			}
		}
	}

	summary.FilePaths = make([]string, 0, len(files))
	for f := range files {
		summary.FilePaths = append(summary.FilePaths, f)
	}
	sort.Strings(summary.FilePaths)
	summary.Errors = lastN(summary.Errors, maxSummaryErrors)
	summary.Completed = lastN(summary.Completed, maxSummaryCompleted)
	return summary
}

// filePaths returns the file-like tokens of content. Tokens that are part of
// a URL ("https://host/page.html", "//cdn/app.js") are skipped.
func filePaths(content string) []string {
	var out []string
	for _, loc := range filePathPattern.FindAllStringIndex(content, -1) {
		token := content[loc[0]:loc[1]]
		if strings.HasPrefix(token, "//") {
			continue
		}
		if loc[0] > 0 {
			if prev := content[loc[0]-1]; prev == ':' || prev == '/' {
				continue
			}
		}
		out = append(out, token)
	}
	return out
}

func matchingLines(content string, keywords []string, limit int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				out = append(out, line)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// clip shortens s to maxSummaryEntryBytes without splitting a rune.
func clip(s string) string {
	if len(s) <= maxSummaryEntryBytes {
		return s
	}
	cut := maxSummaryEntryBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return append([]string(nil), items[len(items)-n:]...)
}
