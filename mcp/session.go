package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName and ClientVersion identify this agent during initialize.
const (
	ClientName    = "code-agent"
	ClientVersion = "1.0.0"
)

// ToolInfo is one tool advertised by a server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Session is a live connection to one MCP server.
type Session interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	// CallTool returns the text content of the result. A result flagged
	// isError is returned as an error carrying that text.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// Connector opens a session for a configured server.
type Connector func(ctx context.Context, name string, cfg ServerConfig) (Session, error)

// StdioConnector launches the server as a subprocess and performs the
// initialize handshake over its stdin and stdout.
func StdioConnector(ctx context.Context, name string, cfg ServerConfig) (Session, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, serverEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", name, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", name, err)
	}
	return &stdioSession{client: c}, nil
}

// serverEnv layers the configured variables over the current environment.
func serverEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

type stdioSession struct {
	client *client.Client
}

func (s *stdioSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	tools := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t),
		})
	}
	return tools, nil
}

// inputSchema round-trips the tool through JSON so raw and structured schemas
// come out the same way.
func inputSchema(t mcp.Tool) map[string]any {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var doc struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc.InputSchema
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if raw, err := json.Marshal(v); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (s *stdioSession) Close() error {
	return s.client.Close()
}
