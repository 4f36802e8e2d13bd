// Package config loads the agent configuration from a YAML file, a .env file
// and CODEAGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/martinemde/codeagent/agentloop"
)

// EnvPrefix prefixes every environment override, e.g. CODEAGENT_LLM_MODEL.
const EnvPrefix = "CODEAGENT"

// Config is the top-level application configuration.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Compression CompressionConfig `mapstructure:"compression"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider"` // openai, anthropic, ollama, groq, mistral...
	Model             string  `mapstructure:"model"`
	APIKey            string  `mapstructure:"api_key"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// AgentConfig bounds the strategy controllers.
type AgentConfig struct {
	Strategy               string `mapstructure:"strategy"`
	MaxReactIterations     int    `mapstructure:"max_react_iterations"`
	MaxPlanStepIterations  int    `mapstructure:"max_plan_step_iterations"`
	MaxReflectionRevisions int    `mapstructure:"max_reflection_revisions"`
	EnableLoopDetection    bool   `mapstructure:"enable_loop_detection"`
	LoopDetectionWindow    int    `mapstructure:"loop_detection_window"`
	WorkingDir             string `mapstructure:"working_dir"`
	Instructions           string `mapstructure:"instructions"`
}

// CompressionConfig holds the compressor parameters a and b.
type CompressionConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	ThresholdA int  `mapstructure:"threshold_a"`
	KeepLastB  int  `mapstructure:"keep_last_b"`
}

// ToolsConfig tunes the local tools.
type ToolsConfig struct {
	DefaultTimeoutSeconds int            `mapstructure:"default_timeout_seconds"`
	TimeoutSeconds        map[string]int `mapstructure:"timeout_seconds"`
	OutputCharLimits      map[string]int `mapstructure:"output_char_limits"`
	OutputLineLimits      map[string]int `mapstructure:"output_line_limits"`
	PythonBin             string         `mapstructure:"python_bin"`
}

// MCPConfig points at the MCP server definitions.
type MCPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ConfigPath string `mapstructure:"config_path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads configuration from path, or from codeagent.yaml in the current
// directory or ./configs when path is empty. A missing default file is not an
// error. Variables from a .env file in the working directory are loaded first
// and never override the real environment. Environment variables override
// file values (prefix CODEAGENT_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("codeagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerAPIKey(v, cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults populates defaults for every optional field.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("agent.strategy", string(agentloop.StrategyReactive))
	v.SetDefault("agent.max_react_iterations", 30)
	v.SetDefault("agent.max_plan_step_iterations", 10)
	v.SetDefault("agent.max_reflection_revisions", 3)
	v.SetDefault("agent.enable_loop_detection", true)
	v.SetDefault("agent.loop_detection_window", 10)
	v.SetDefault("agent.working_dir", "")
	v.SetDefault("agent.instructions", "")

	v.SetDefault("compression.enabled", true)
	v.SetDefault("compression.threshold_a", 20)
	v.SetDefault("compression.keep_last_b", 5)

	v.SetDefault("tools.default_timeout_seconds", 60)
	v.SetDefault("tools.timeout_seconds", map[string]int{"run_tests": 300})
	v.SetDefault("tools.output_char_limits", map[string]int{})
	v.SetDefault("tools.output_line_limits", map[string]int{})
	v.SetDefault("tools.python_bin", "python3")

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.config_path", "mcp_config.json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// providerAPIKey falls back to the provider's conventional variable, e.g.
// OPENAI_API_KEY.
func providerAPIKey(v *viper.Viper, provider string) string {
	if provider == "" {
		return ""
	}
	key := strings.ToUpper(provider) + "_API_KEY"
	if err := v.BindEnv("provider_api_key", key); err != nil {
		return ""
	}
	return v.GetString("provider_api_key")
}

// Validate performs sanity checks on configuration values.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return errors.New("llm.provider must be set")
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds < 0 || c.LLM.MaxRetries < 0 || c.LLM.RequestsPerMinute < 0 {
		return errors.New("llm.timeout_seconds, llm.max_retries and llm.requests_per_minute must not be negative")
	}

	if _, ok := agentloop.ParseStrategy(c.Agent.Strategy); !ok {
		return fmt.Errorf("agent.strategy %q is not one of %v", c.Agent.Strategy, agentloop.Strategies)
	}
	if c.Agent.MaxReactIterations <= 0 {
		return errors.New("agent.max_react_iterations must be positive")
	}
	if c.Agent.MaxPlanStepIterations <= 0 {
		return errors.New("agent.max_plan_step_iterations must be positive")
	}
	if c.Agent.MaxReflectionRevisions < 0 {
		return errors.New("agent.max_reflection_revisions must not be negative")
	}
	if c.Agent.EnableLoopDetection && c.Agent.LoopDetectionWindow < 2 {
		return errors.New("agent.loop_detection_window must be at least 2")
	}

	if c.Compression.Enabled {
		if c.Compression.KeepLastB < 0 || c.Compression.KeepLastB >= c.Compression.ThresholdA {
			return fmt.Errorf("compression.keep_last_b (%d) must be at least 0 and below compression.threshold_a (%d)",
				c.Compression.KeepLastB, c.Compression.ThresholdA)
		}
	}

	if c.Tools.DefaultTimeoutSeconds <= 0 {
		return errors.New("tools.default_timeout_seconds must be positive")
	}
	for name, secs := range c.Tools.TimeoutSeconds {
		if secs <= 0 {
			return fmt.Errorf("tools.timeout_seconds.%s must be positive", name)
		}
	}

	if c.MCP.Enabled && c.MCP.ConfigPath == "" {
		return errors.New("mcp.config_path must be set when mcp is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

// AgentOptions maps the configuration onto orchestrator options.
func (c *Config) AgentOptions() agentloop.Options {
	opts := agentloop.DefaultOptions()
	opts.Strategy = agentloop.Strategy(c.Agent.Strategy)
	opts.MaxReactIterations = c.Agent.MaxReactIterations
	opts.MaxPlanStepIterations = c.Agent.MaxPlanStepIterations
	opts.MaxReflectionRevisions = c.Agent.MaxReflectionRevisions
	opts.LoopDetectionWindow = 0
	if c.Agent.EnableLoopDetection {
		opts.LoopDetectionWindow = c.Agent.LoopDetectionWindow
	}
	opts.DisableCompression = !c.Compression.Enabled
	opts.CompressionThreshold = c.Compression.ThresholdA
	opts.CompressionKeepLast = c.Compression.KeepLastB
	opts.Prompt = agentloop.PromptContext{
		WorkingDir:       c.Agent.WorkingDir,
		Model:            c.LLM.Model,
		UserInstructions: c.Agent.Instructions,
	}
	return opts
}

// LLMTimeout returns the per-query deadline, zero meaning none.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ToolTimeouts converts per-tool timeouts to durations.
func (c *Config) ToolTimeouts() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Tools.TimeoutSeconds))
	for name, secs := range c.Tools.TimeoutSeconds {
		out[name] = time.Duration(secs) * time.Second
	}
	return out
}

// DefaultToolTimeout returns the timeout for tools without an override.
func (c *Config) DefaultToolTimeout() time.Duration {
	return time.Duration(c.Tools.DefaultTimeoutSeconds) * time.Second
}
