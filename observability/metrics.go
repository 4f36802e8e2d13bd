// Package observability exposes Prometheus collectors for agent runs, tool
// dispatch, history compression and LLM calls.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martinemde/codeagent/unifiedllm"
)

// Metrics bundles the collectors. It implements agentloop.Recorder and
// unifiedllm.CallRecorder; a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	RunIterations *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	Compressions  prometheus.Counter
	MessagesSaved prometheus.Counter
	LLMCalls      *prometheus.CounterVec
	LLMDuration   *prometheus.HistogramVec
	LLMTokens     *prometheus.CounterVec
}

// NewMetrics constructs a registry with every collector registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeagent_runs_total",
		Help: "Agent runs by strategy and terminal status",
	}, []string{"strategy", "status"})

	runDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeagent_run_duration_seconds",
		Help:    "Agent run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"strategy"})

	runIter := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeagent_run_iterations",
		Help:    "Reasoning iterations consumed per run",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
	}, []string{"strategy"})

	tools := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeagent_tool_calls_total",
		Help: "Tool invocations by tool and outcome (ok, not_found, execution_error, timeout)",
	}, []string{"tool", "outcome"})

	toolDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeagent_tool_duration_seconds",
		Help:    "Tool invocation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	compressions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codeagent_compressions_total",
		Help: "History compressions performed",
	})

	saved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codeagent_compression_messages_saved_total",
		Help: "Messages removed from history by compression",
	})

	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeagent_llm_calls_total",
		Help: "LLM provider calls by provider, model and outcome (ok or the error kind)",
	}, []string{"provider", "model", "outcome"})

	llmDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeagent_llm_call_duration_seconds",
		Help:    "LLM provider call latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"provider", "model"})

	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codeagent_llm_tokens_total",
		Help: "Tokens reported by the provider, split by direction",
	}, []string{"provider", "model", "direction"})

	reg.MustRegister(runs, runDur, runIter, tools, toolDur, compressions, saved, llmCalls, llmDur, tokens)

	return &Metrics{
		registry:      reg,
		Runs:          runs,
		RunDuration:   runDur,
		RunIterations: runIter,
		ToolCalls:     tools,
		ToolDuration:  toolDur,
		Compressions:  compressions,
		MessagesSaved: saved,
		LLMCalls:      llmCalls,
		LLMDuration:   llmDur,
		LLMTokens:     tokens,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(strategy, status string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	strategy = orUnknown(strategy)
	m.Runs.WithLabelValues(strategy, orUnknown(status)).Inc()
	m.RunDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	m.RunIterations.WithLabelValues(strategy).Observe(float64(iterations))
}

// RecordToolCall records one dispatch.
func (m *Metrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	tool = orUnknown(tool)
	m.ToolCalls.WithLabelValues(tool, orUnknown(outcome)).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCompression records one history compression.
func (m *Metrics) RecordCompression(originalCount, compressedCount int) {
	if m == nil {
		return
	}
	m.Compressions.Inc()
	if saved := originalCount - compressedCount; saved > 0 {
		m.MessagesSaved.Add(float64(saved))
	}
}

// RecordLLMCall records one provider call.
func (m *Metrics) RecordLLMCall(provider, model, outcome string, duration time.Duration, usage unifiedllm.Usage) {
	if m == nil {
		return
	}
	provider, model = orUnknown(provider), orUnknown(model)
	m.LLMCalls.WithLabelValues(provider, model, orUnknown(outcome)).Inc()
	m.LLMDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if usage.InputTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, model, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.LLMTokens.WithLabelValues(provider, model, "output").Add(float64(usage.OutputTokens))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
