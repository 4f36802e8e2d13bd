// Package mcp bridges Model Context Protocol servers into the agent's tool
// dispatcher. Each enabled server is launched over stdio and its tools are
// registered as mcp_<server>_<tool>.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// ServerConfig describes how to launch one MCP server.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

// IsEnabled reports whether the server should be started.
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config is the mcp_config.json document.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads path. A missing file yields an empty config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{Servers: map[string]ServerConfig{}}, nil
		}
		return Config{}, fmt.Errorf("read mcp config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse mcp config %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	for name, s := range cfg.Servers {
		if s.Command == "" {
			return Config{}, fmt.Errorf("mcp server %q has no command", name)
		}
	}
	return cfg, nil
}

// Enabled returns the names of enabled servers in sorted order.
func (c Config) Enabled() []string {
	names := make([]string, 0, len(c.Servers))
	for name, s := range c.Servers {
		if s.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
