// Package cli implements the codeagent command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinemde/codeagent/config"
	"github.com/martinemde/codeagent/unifiedllm"
	"github.com/martinemde/codeagent/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string

	// completer replaces the provider client; tests use it to script the model.
	completer unifiedllm.Completer
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Options{})
}

func newRootCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "codeagent",
		Short:         "codeagent - a tool-using coding assistant",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: codeagent.yaml)")

	cmd.AddCommand(NewRunCmd(opts))
	cmd.AddCommand(NewToolsCmd(opts))
	cmd.AddCommand(NewModelsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
