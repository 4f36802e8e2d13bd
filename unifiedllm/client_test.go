package unifiedllm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	calls    int
	lastReq  Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock), WithDefaultModel("m1"))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Model != "m1" || mock.lastReq.Provider != "test-provider" {
		t.Errorf("defaults not applied: %+v", mock.lastReq)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	deepseek := newMockAdapter("deepseek", "DeepSeek response")
	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("deepseek", deepseek),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{Provider: "deepseek", Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "DeepSeek response" {
		t.Errorf("expected DeepSeek response, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("expected OpenAI response, got %q", resp.Text())
	}

	if got := strings.Join(client.Providers(), ","); got != "deepseek,openai" {
		t.Errorf("unexpected providers %q", got)
	}
}

func TestClientNoProvider(t *testing.T) {
	_, err := NewClient().Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClientInfersProviderFromCatalog(t *testing.T) {
	client := &Client{providers: map[string]ProviderAdapter{}}
	client.providers["deepseek"] = newMockAdapter("deepseek", "ok")
	client.providers["openai"] = newMockAdapter("openai", "wrong")

	resp, err := client.Complete(context.Background(), Request{Model: "deepseek-chat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("expected catalog routing to deepseek, got %q", resp.Text())
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, req Request, next Handler) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}

	client := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(mw("first"), mw("second")))
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "first:before,second:before,second:after,first:after"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

type recorded struct {
	outcome string
	usage   Usage
}

type fakeRecorder struct{ calls []recorded }

func (f *fakeRecorder) RecordLLMCall(provider, model, outcome string, d time.Duration, usage Usage) {
	f.calls = append(f.calls, recorded{outcome: outcome, usage: usage})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeRecorder{}
	ok := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(MetricsMiddleware(rec)))
	if _, err := ok.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := newMockAdapter("p", "")
	failing.err = &ServerError{}
	bad := NewClient(WithProvider("p", failing), WithMiddleware(MetricsMiddleware(rec)))
	if _, err := bad.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}

	if len(rec.calls) != 2 || rec.calls[0].outcome != "ok" || rec.calls[1].outcome != "server" {
		t.Fatalf("unexpected recordings: %+v", rec.calls)
	}
	if rec.calls[0].usage.TotalTokens != 30 {
		t.Errorf("usage not recorded: %+v", rec.calls[0].usage)
	}
}

func TestRateLimitMiddlewareHonoursContext(t *testing.T) {
	limiter := NewRequestsPerMinuteLimiter(1)
	client := NewClient(WithProvider("p", newMockAdapter("p", "x")), WithMiddleware(RateLimitMiddleware(limiter)))

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, Request{})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError while waiting on limiter, got %v", err)
	}
}

func TestNewRequestsPerMinuteLimiterDisabled(t *testing.T) {
	if NewRequestsPerMinuteLimiter(0) != nil {
		t.Error("expected nil limiter for rpm=0")
	}
}

type closingAdapter struct {
	*mockAdapter
	closeErr error
	closed   bool
}

func (c *closingAdapter) Close() error {
	c.closed = true
	return c.closeErr
}

func TestClientCloseReportsEveryFailure(t *testing.T) {
	a := &closingAdapter{mockAdapter: newMockAdapter("a", "x"), closeErr: errors.New("a broke")}
	b := &closingAdapter{mockAdapter: newMockAdapter("b", "x"), closeErr: errors.New("b broke")}
	plain := newMockAdapter("c", "x")
	client := NewClient(WithProvider("a", a), WithProvider("b", b), WithProvider("c", plain))

	err := client.Close()
	if !a.closed || !b.closed {
		t.Fatal("expected every closer to run")
	}
	if err == nil || !strings.Contains(err.Error(), "close provider a: a broke") || !strings.Contains(err.Error(), "close provider b: b broke") {
		t.Errorf("unexpected close error: %v", err)
	}
}
