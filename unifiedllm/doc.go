// Package unifiedllm is a small provider-agnostic LLM client built on gollm
// (github.com/teilomillet/gollm).
//
// # Layers
//
//   - ProviderAdapter and shared message types
//   - Client with provider routing and a middleware chain (logging, rate
//     limiting, metrics)
//   - ChatClient, the chat capability consumed by the agent engine:
//     SendRecv, ExtractText and Chat, with transport-level retry
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewGollmAdapter("openai", unifiedllm.WithAPIKey(key))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
//	)
//	chat := unifiedllm.NewChatClient(client, unifiedllm.WithChatModel("gpt-4o-mini"))
//	text, err := chat.Chat(ctx, []unifiedllm.Message{unifiedllm.UserMessage("Hello")})
//
// Errors follow a typed hierarchy rooted at SDKError. KindOf names the
// ErrorKind of any wrapped failure; the kind decides retries and labels logs
// and metrics.
package unifiedllm
