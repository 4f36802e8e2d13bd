package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/codeagent/agentloop"
	"github.com/martinemde/codeagent/config"
	"github.com/martinemde/codeagent/mcp"
	"github.com/martinemde/codeagent/observability"
	"github.com/martinemde/codeagent/toolkit"
	"github.com/martinemde/codeagent/unifiedllm"
)

// app is the wired process: tools, model client, metrics and MCP servers.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher *agentloop.Dispatcher
	mcp        *mcp.Manager

	closers []func() error
}

// newApp builds the dispatcher with local and MCP tools. It does not touch
// the model provider; see orchestrator.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	env, err := toolkit.NewEnvironment(cfg.Agent.WorkingDir)
	if err != nil {
		return nil, err
	}
	// The prompt shows the resolved directory.
	cfg.Agent.WorkingDir = env.WorkingDir

	a.dispatcher = agentloop.NewDispatcher(
		agentloop.WithDefaultTimeout(cfg.DefaultToolTimeout()),
		agentloop.WithOutputLimits(cfg.Tools.OutputCharLimits, cfg.Tools.OutputLineLimits),
		agentloop.WithDispatcherLogger(logger),
		agentloop.WithDispatcherRecorder(a.metrics),
	)
	toolkit.Register(a.dispatcher, env, toolkit.Options{
		PythonBin: cfg.Tools.PythonBin,
		Timeouts:  cfg.ToolTimeouts(),
		Logger:    logger,
	})

	if cfg.MCP.Enabled {
		if err := a.startMCP(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) startMCP(ctx context.Context) error {
	mcpCfg, err := mcp.LoadConfig(a.cfg.MCP.ConfigPath)
	if err != nil {
		return err
	}
	a.mcp = mcp.NewManager(mcp.WithLogger(a.logger))
	a.closers = append(a.closers, a.mcp.Close)
	// Unavailable servers are skipped; the manager already logged them.
	_ = a.mcp.Start(ctx, mcpCfg)
	names := a.mcp.Register(a.dispatcher)
	a.logger.Info("mcp tools registered", zap.Strings("servers", a.mcp.Servers()), zap.Int("tools", len(names)))
	return nil
}

// serveMetrics exposes /metrics until Close when metrics are enabled.
func (a *app) serveMetrics() {
	if !a.cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// llm builds the chat capability: provider adapter, middleware chain and
// retrying chat client.
func (a *app) llm(completer unifiedllm.Completer) (*unifiedllm.ChatClient, error) {
	llmCfg := a.cfg.LLM
	if completer == nil {
		adapterOpts := []unifiedllm.GollmAdapterOption{
			unifiedllm.WithModel(llmCfg.Model),
			unifiedllm.WithMaxTokens(llmCfg.MaxTokens),
			unifiedllm.WithTemperature(llmCfg.Temperature),
		}
		if llmCfg.APIKey != "" {
			adapterOpts = append(adapterOpts, unifiedllm.WithAPIKey(llmCfg.APIKey))
		}
		adapter, err := unifiedllm.NewGollmAdapter(llmCfg.Provider, adapterOpts...)
		if err != nil {
			return nil, err
		}
		client := unifiedllm.NewClient(
			unifiedllm.WithProvider(llmCfg.Provider, adapter),
			unifiedllm.WithDefaultProvider(llmCfg.Provider),
			unifiedllm.WithMiddleware(
				unifiedllm.LoggingMiddleware(a.logger),
				unifiedllm.RateLimitMiddleware(unifiedllm.NewRequestsPerMinuteLimiter(llmCfg.RequestsPerMinute)),
				unifiedllm.MetricsMiddleware(a.metrics),
			),
		)
		a.closers = append(a.closers, client.Close)
		completer = client
	}

	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxRetries = llmCfg.MaxRetries
	return unifiedllm.NewChatClient(completer,
		unifiedllm.WithChatModel(llmCfg.Model),
		unifiedllm.WithChatTemperature(llmCfg.Temperature),
		unifiedllm.WithChatMaxTokens(llmCfg.MaxTokens),
		unifiedllm.WithRetryPolicy(policy),
		unifiedllm.WithRequestTimeout(a.cfg.LLMTimeout()),
		unifiedllm.WithChatLogger(a.logger),
	), nil
}

// orchestrator wires the configured strategy onto the dispatcher.
func (a *app) orchestrator(completer unifiedllm.Completer, strategy string) (*agentloop.Orchestrator, error) {
	chat, err := a.llm(completer)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	opts := a.cfg.AgentOptions()
	if strategy != "" {
		s, ok := agentloop.ParseStrategy(strategy)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", strategy)
		}
		opts.Strategy = s
	}
	opts.Logger = a.logger
	opts.Recorder = a.metrics
	return agentloop.NewOrchestrator(chat, a.dispatcher, opts)
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
