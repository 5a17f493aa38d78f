package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/session"
)

func newBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show how the context window of the configured model is split",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := initConfig()
			if err != nil {
				return err
			}
			b, err := session.GetContextBudget(cfg.Model, budgetOptions(cfg))
			if err != nil {
				// The budget is still usable; the error explains the clamping.
				logger.Warn("budget adjusted", "error", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(w, "model\t%s\t\n", b.Model)
			fmt.Fprintf(w, "context window\t%d\t\n", b.ContextWindow)
			fmt.Fprintf(w, "max output\t%d\t\n", b.MaxOutput)
			fmt.Fprintf(w, "available input\t%d\t\n", b.AvailableInput)
			fmt.Fprintf(w, "system\t%d\t\n", b.SystemBudget)
			fmt.Fprintf(w, "conversation\t%d\t\n", b.ConversationBudget)
			fmt.Fprintf(w, "content\t%d\t\n", b.ContentBudget)
			fmt.Fprintf(w, "summarize at\t%d\t\n", b.SummarizeAt())
			return w.Flush()
		},
	}
}
