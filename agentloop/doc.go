// Package agentloop is the orchestration engine of a coding agent.
//
// It drives a language model through iterative reasoning and tool use while
// keeping the conversation bounded. The model is consumed through the narrow
// LLM interface and tools through the Capability interface, so neither the
// transport nor the concrete tools live here.
//
// # Architecture
//
//   - History: the ordered conversation, starting with one system message.
//   - Compressor: replaces the middle of a long History with a deterministic
//     summary message, keeping the system prompt and the last b messages.
//   - Dispatcher: maps tool names to capabilities and turns every invocation,
//     including panics and timeouts, into a ToolResult.
//   - Controllers: ReactiveController, PlanAndSolveController and
//     ReflectionController implement three control-flow strategies behind
//     the Controller interface.
//   - Orchestrator: owns the History of one conversation, compresses before
//     every query and reports a terminal Status.
//   - EventEmitter: a typed event stream for the host application.
//
// # Quick Start
//
//	disp := agentloop.NewDispatcher()
//	toolkit.Register(disp, env, toolkit.Options{})
//	orch, err := agentloop.NewOrchestrator(chatClient, disp, agentloop.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Close()
//
//	report := orch.Run(ctx, "Fix the failing test in parser_test.go")
//	fmt.Println(report.Status, report.FinalAnswer)
//
// A Dispatcher and an Orchestrator serve one conversation at a time. Host
// concurrent conversations with one of each per conversation.
package agentloop
