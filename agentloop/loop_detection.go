package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// toolCallSignature is the tool name plus a hash of its canonical arguments.
func toolCallSignature(call ToolCall) string {
	// encoding/json sorts map keys, so equal arguments hash equally.
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		raw = []byte(fmt.Sprint(call.Arguments))
	}
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// DetectLoop reports whether the last windowSize tool calls in h repeat a
// pattern of length 1, 2 or 3.
func DetectLoop(h *History, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	calls := h.ToolCalls(windowSize)
	if len(calls) < windowSize {
		return false
	}
	sigs := make([]string, len(calls))
	for i, c := range calls {
		sigs[i] = toolCallSignature(c)
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}
