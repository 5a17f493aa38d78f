package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/provider"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models and aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT\tREASONING")
			for _, m := range provider.Models() {
				c := provider.Lookup(m)
				reasoning := "-"
				if c.SupportsReasoning {
					reasoning = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m, c.Provider, c.ContextWindow, reasoning)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			aliases := provider.Aliases()
			names := make([]string, 0, len(aliases))
			for a := range aliases {
				names = append(names, a)
			}
			sort.Strings(names)

			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tMODEL")
			for _, a := range names {
				fmt.Fprintf(w, "%s\t%s\n", a, aliases[a])
			}
			return w.Flush()
		},
	}
}
