package unifiedllm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the provider key. Without one gollm reads the provider's
// environment variable.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.apiKey = key }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.model = model }
}

// WithMaxTokens sets the default response cap. Non-positive values keep 4096.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.temperature = t }
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If no API key is configured, gollm reads it from the environment.
func NewGollmAdapter(provider string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider); info != nil {
			model = info.ID
		} else {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("no model configured and none known for provider %q", provider),
			}}
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries live in ChatClient
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	system, body := flattenMessages(req.Messages)

	promptOpts := []gollm.PromptOption{}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	prompt := gollm.NewPrompt(body, promptOpts...)

	a.applyRequestOptions(req)

	start := time.Now()
	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text, time.Since(start)), nil
}

// flattenMessages folds a role-tagged conversation into the single system
// prompt plus transcript body that gollm's prompt API accepts.
func flattenMessages(msgs []Message) (system string, body string) {
	var sys []string
	var parts []string
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.TextContent())
		case RoleUser:
			parts = append(parts, msg.PlainText())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
		case RoleTool:
			parts = append(parts, msg.PlainText())
		}
	}
	body = strings.Join(parts, "\n\n")
	if body == "" {
		body = "Hello"
	}
	return strings.TrimSpace(strings.Join(sys, "\n")), body
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		a.llm.SetOption("stop", req.StopSequences)
	}
}

func (a *GollmAdapter) buildResponse(req Request, text string, latency time.Duration) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	input := estimateTokens(req)
	output := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		// gollm does not surface token usage; estimate from text length.
		Usage:   Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output},
		Latency: latency,
	}
}

// errorSignatures maps substrings of gollm's flattened error text to kinds.
// gollm does not expose status codes, so the first match wins.
var errorSignatures = []struct {
	kind    ErrorKind
	status  int
	needles []string
}{
	{KindAuthentication, 401, []string{"401", "unauthorized", "invalid key", "invalid api key"}},
	{KindAccessDenied, 403, []string{"403", "forbidden"}},
	{KindNotFound, 404, []string{"404", "not found"}},
	{KindRateLimit, 429, []string{"429", "rate limit"}},
	{KindContextLength, 413, []string{"context length", "too many tokens", "maximum context"}},
	{KindServer, 500, []string{"500", "502", "503", "internal server", "bad gateway", "unavailable", "overloaded"}},
	{KindTimeout, 408, []string{"timeout", "deadline exceeded"}},
	{KindNetwork, 0, []string{"connection refused", "no such host", "connection reset", "unexpected eof"}},
	{KindContentFilter, 0, []string{"content filter", "safety"}},
}

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, sig := range errorSignatures {
		for _, needle := range sig.needles {
			if strings.Contains(lower, needle) {
				return a.newError(sig.kind, sig.status, msg, err)
			}
		}
	}
	return a.newError(KindProvider, 0, msg, err)
}

func (a *GollmAdapter) newError(kind ErrorKind, status int, msg string, cause error) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: msg, Cause: cause},
		Provider:   a.provider,
		StatusCode: status,
		Retryable:  retryableKinds[kind] || kind == KindProvider,
	}
	switch kind {
	case KindAuthentication:
		return &AuthenticationError{ProviderError: pe}
	case KindAccessDenied:
		return &AccessDeniedError{ProviderError: pe}
	case KindNotFound:
		return &NotFoundError{ProviderError: pe}
	case KindRateLimit:
		return &RateLimitError{ProviderError: pe}
	case KindContextLength:
		return &ContextLengthError{ProviderError: pe}
	case KindServer:
		return &ServerError{ProviderError: pe}
	case KindContentFilter:
		return &ContentFilterError{ProviderError: pe}
	case KindTimeout:
		return &RequestTimeoutError{SDKError: pe.SDKError}
	case KindNetwork:
		return &NetworkError{SDKError: pe.SDKError}
	default:
		return &pe
	}
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.PlainText()) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
