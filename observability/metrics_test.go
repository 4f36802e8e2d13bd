package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/codeagent/agentloop"
	"github.com/martinemde/codeagent/unifiedllm"
)

var (
	_ agentloop.Recorder      = (*Metrics)(nil)
	_ unifiedllm.CallRecorder = (*Metrics)(nil)
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRun("reactive", "success", time.Second, 3)
	m.RecordToolCall("read_file", "ok", time.Millisecond)
	m.RecordCompression(22, 7)
	m.RecordLLMCall("openai", "gpt-4o", "ok", time.Second, unifiedllm.Usage{})
}

func TestRecordRunAndTools(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("reactive", "success", 2*time.Second, 4)
	m.RecordRun("reactive", "success", time.Second, 1)
	m.RecordRun("", "failed", time.Second, 0)
	m.RecordToolCall("run_shell", "timeout", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("reactive", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("unknown", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("run_shell", "timeout")))
}

func TestRecordCompression(t *testing.T) {
	m := NewMetrics()
	m.RecordCompression(22, 7)
	m.RecordCompression(10, 10)
	require.Equal(t, 2.0, testutil.ToFloat64(m.Compressions))
	require.Equal(t, 15.0, testutil.ToFloat64(m.MessagesSaved))
}

func TestRecordLLMCall(t *testing.T) {
	m := NewMetrics()
	m.RecordLLMCall("anthropic", "claude", "ok", time.Second, unifiedllm.Usage{InputTokens: 100, OutputTokens: 20})
	m.RecordLLMCall("anthropic", "claude", "error", time.Second, unifiedllm.Usage{})

	require.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("anthropic", "claude", "error")))
	require.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "claude", "input")))
	require.Equal(t, 20.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "claude", "output")))
}

func TestDispatcherFeedsMetrics(t *testing.T) {
	m := NewMetrics()
	d := agentloop.NewDispatcher(agentloop.WithDispatcherRecorder(m))
	d.Dispatch(context.Background(), agentloop.ToolCall{Name: "missing"})
	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("missing", "not_found")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("reflection", "partial_success", time.Second, 6)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `codeagent_runs_total{status="partial_success",strategy="reflection"} 1`)
}
