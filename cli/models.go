package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/martinemde/codeagent/unifiedllm"
)

// NewModelsCmd prints the model catalog.
func NewModelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models and their context windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := unifiedllm.ListModels(provider)
			if len(models) == 0 {
				return fmt.Errorf("no models known for provider %q", provider)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tNAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Provider, m.ID, m.ContextWindow, m.DisplayName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only list models of this provider")
	return cmd
}
