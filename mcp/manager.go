package mcp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/martinemde/codeagent/agentloop"
)

// Manager owns the sessions of every started server.
type Manager struct {
	connect Connector
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]Session
	tools    map[string][]ToolInfo
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnector replaces the stdio connector.
func WithConnector(c Connector) ManagerOption {
	return func(m *Manager) { m.connect = c }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates an idle manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		connect:  StdioConnector,
		logger:   zap.NewNop(),
		sessions: map[string]Session{},
		tools:    map[string][]ToolInfo{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects to every enabled server and lists its tools. A server that
// fails to start is logged and skipped; the error lists every failure.
func (m *Manager) Start(ctx context.Context, cfg Config) error {
	var errs []error
	for _, name := range cfg.Enabled() {
		if err := m.startServer(ctx, name, cfg.Servers[name]); err != nil {
			m.logger.Warn("mcp server unavailable", zap.String("server", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) startServer(ctx context.Context, name string, cfg ServerConfig) error {
	session, err := m.connect(ctx, name, cfg)
	if err != nil {
		return err
	}
	tools, err := session.ListTools(ctx)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("list tools of mcp server %s: %w", name, err)
	}

	m.mu.Lock()
	if old, ok := m.sessions[name]; ok {
		_ = old.Close()
	}
	m.sessions[name] = session
	m.tools[name] = tools
	m.mu.Unlock()

	m.logger.Info("mcp server started", zap.String("server", name), zap.Int("tools", len(tools)))
	return nil
}

// Servers returns the names of running servers.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var unsafeToolChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ToolName is the dispatcher name of a server's tool.
func ToolName(server, tool string) string {
	return "mcp_" + unsafeToolChars.ReplaceAllString(server, "_") + "_" + unsafeToolChars.ReplaceAllString(tool, "_")
}

// Register adds every remote tool to d and returns the registered names.
func (m *Manager) Register(d *agentloop.Dispatcher) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	servers := make([]string, 0, len(m.tools))
	for name := range m.tools {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	var names []string
	for _, server := range servers {
		session := m.sessions[server]
		for _, tool := range m.tools[server] {
			name := ToolName(server, tool.Name)
			params := tool.InputSchema
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			desc := tool.Description
			if desc == "" {
				desc = fmt.Sprintf("%s tool from MCP server %s", tool.Name, server)
			}
			d.Register(agentloop.RegisteredTool{
				Definition: agentloop.ToolDefinition{Name: name, Description: desc, Parameters: params},
				Capability: remoteTool{session: session, tool: tool.Name},
			})
			names = append(names, name)
		}
	}
	return names
}

// Close stops every server.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, s := range m.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop mcp server %s: %w", name, err))
		}
	}
	m.sessions = map[string]Session{}
	m.tools = map[string][]ToolInfo{}
	return errors.Join(errs...)
}

// remoteTool forwards dispatcher invocations to tools/call.
type remoteTool struct {
	session Session
	tool    string
}

func (r remoteTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return r.session.CallTool(ctx, r.tool, args)
}
