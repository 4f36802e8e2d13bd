package unifiedllm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer is the subset of Client that ChatClient needs.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ChatClient exposes the three-call chat capability the agent engine consumes:
// send and receive a raw response, extract its text, or both at once.
type ChatClient struct {
	completer   Completer
	model       string
	temperature *float64
	maxTokens   *int
	retry       RetryPolicy
	timeout     time.Duration
	logger      *zap.Logger
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

// WithChatModel sets the model sent on every request.
func WithChatModel(model string) ChatOption {
	return func(c *ChatClient) { c.model = model }
}

// WithChatTemperature sets the sampling temperature sent on every request.
func WithChatTemperature(t float64) ChatOption {
	return func(c *ChatClient) { c.temperature = &t }
}

// WithChatMaxTokens caps the response length.
func WithChatMaxTokens(n int) ChatOption {
	return func(c *ChatClient) {
		if n > 0 {
			c.maxTokens = &n
		}
	}
}

// WithRetryPolicy overrides the transport retry policy.
func WithRetryPolicy(p RetryPolicy) ChatOption {
	return func(c *ChatClient) { c.retry = p }
}

// WithRequestTimeout bounds each attempt. Zero means no deadline.
func WithRequestTimeout(d time.Duration) ChatOption {
	return func(c *ChatClient) { c.timeout = d }
}

// WithChatLogger attaches a logger used for retry notices.
func WithChatLogger(l *zap.Logger) ChatOption {
	return func(c *ChatClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChatClient wraps a Completer (normally a *Client).
func NewChatClient(completer Completer, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		completer: completer,
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendRecv sends the messages and returns the raw provider response.
func (c *ChatClient) SendRecv(ctx context.Context, msgs []Message) (*Response, error) {
	req := Request{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	policy := c.retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			c.logger.Warn("retrying llm request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}
	return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
		if c.timeout <= 0 {
			return c.completer.Complete(ctx, req)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.completer.Complete(attemptCtx, req)
		return resp, attemptError(ctx, err)
	})
}

// ExtractText returns the response text, or an EmptyResponseError when the
// model produced nothing usable.
func (c *ChatClient) ExtractText(resp *Response) (string, error) {
	if resp == nil {
		return "", &EmptyResponseError{SDKError: SDKError{Message: "nil response"}}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &EmptyResponseError{SDKError: SDKError{Message: "response contained no text"}}
	}
	return text, nil
}

// Chat is SendRecv followed by ExtractText.
func (c *ChatClient) Chat(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.SendRecv(ctx, msgs)
	if err != nil {
		return "", err
	}
	return c.ExtractText(resp)
}
