package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/codeagent/agentloop"
)

const maxRenderedOutput = 400

// renderEvent prints one progress line per interesting event.
func renderEvent(out io.Writer, ev agentloop.Event) {
	d := ev.Data
	switch ev.Kind {
	case agentloop.EventRunStart:
		fmt.Fprintf(out, "[run %s] %v\n", d["strategy"], d["task"])
	case agentloop.EventThought:
		if t := fmt.Sprint(d["thought"]); t != "" {
			fmt.Fprintf(out, "[thought] %s\n", t)
		}
	case agentloop.EventToolCallStart:
		fmt.Fprintf(out, "[tool %s] %v\n", d["tool"], d["arguments"])
	case agentloop.EventToolCallEnd:
		if d["success"] == true {
			fmt.Fprintf(out, "[tool %s ok %s] %s\n", d["tool"], d["duration"], clip(fmt.Sprint(d["output"])))
		} else {
			fmt.Fprintf(out, "[tool %s %s] %s\n", d["tool"], d["error_kind"], d["error"])
		}
	case agentloop.EventFormatError:
		fmt.Fprintf(out, "[format error] %s\n", d["error"])
	case agentloop.EventCompression:
		fmt.Fprintf(out, "[compressed %v -> %v messages]\n", d["original_count"], d["compressed_count"])
	case agentloop.EventPlanCreated:
		fmt.Fprintln(out, "[plan]")
		if steps, ok := d["steps"].([]string); ok {
			for i, s := range steps {
				fmt.Fprintf(out, "  %d. %s\n", i+1, s)
			}
		}
	case agentloop.EventStepStart:
		fmt.Fprintf(out, "[step %d] %s\n", stepNumber(d["index"]), d["description"])
	case agentloop.EventStepEnd:
		fmt.Fprintf(out, "[step %d %s]\n", stepNumber(d["index"]), d["status"])
	case agentloop.EventCritique:
		if d["clean"] == true {
			fmt.Fprintln(out, "[critique] no issues")
		} else {
			fmt.Fprintf(out, "[critique] %v\n", d["findings"])
		}
	case agentloop.EventRevision:
		fmt.Fprintf(out, "[revision %v]\n", d["revision"])
	case agentloop.EventLoopDetection:
		fmt.Fprintf(out, "[loop] %s\n", d["message"])
	case agentloop.EventIterationLimit:
		fmt.Fprintf(out, "[iteration limit %v]\n", d["iterations"])
	case agentloop.EventError:
		fmt.Fprintf(out, "[error] %s\n", d["error"])
	}
}

func stepNumber(v any) int {
	if i, ok := v.(int); ok {
		return i + 1
	}
	return 0
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxRenderedOutput {
		return s
	}
	return s[:maxRenderedOutput] + "..."
}
