package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/codeagent/agentloop"
	"github.com/martinemde/codeagent/logging"
)

// NewRunCmd runs one task, or reads tasks from stdin as a multi-turn
// conversation when no task is given.
func NewRunCmd(opts *Options) *cobra.Command {
	var strategy string
	var quiet bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the agent on a task, or chat interactively when no task is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("shutdown", zap.Error(err))
				}
			}()
			a.serveMetrics()

			orch, err := a.orchestrator(opts.completer, strategy)
			if err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			printer := startEventPrinter(out, orch.Events(), quiet)
			defer printer.Wait()
			defer orch.Close()

			if task := strings.TrimSpace(strings.Join(args, " ")); task != "" {
				report := orch.Run(ctx, task)
				orch.Close()
				printer.Wait()
				return printReport(out, report, asJSON)
			}
			return chat(ctx, cmd.InOrStdin(), out, orch, printer, asJSON)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Override agent.strategy (reactive, plan_and_solve, reflection)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	return cmd
}

// chat runs one task per input line until EOF, /exit or cancellation.
// /reset starts a new conversation.
func chat(ctx context.Context, in io.Reader, out io.Writer, orch *agentloop.Orchestrator, printer *eventPrinter, asJSON bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			orch.Reset()
			fmt.Fprintln(out, "[conversation reset]")
			continue
		}
		report := orch.Run(ctx, line)
		printer.Flush()
		if err := printReport(out, report, asJSON); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printReport(out io.Writer, report agentloop.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if report.FinalAnswer != "" {
		fmt.Fprintln(out, report.FinalAnswer)
	}
	fmt.Fprintf(out, "[%s] %s after %d iterations (%s)\n", report.Status, report.Termination, report.Iterations, report.Duration.Round(time.Millisecond))
	if report.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", report.Reason)
	}
	return nil
}
