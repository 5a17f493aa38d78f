package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/editor"
	"github.com/bookctl/bookctl/internal/github"
)

func newCloseCmd() *cobra.Command {
	var (
		issue  int
		reason string
		pr     int
	)
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Persist facts, post a closing summary and close an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireIssue(issue); err != nil {
				return err
			}
			cfg, logger, err := initConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			ed, err := buildEditor(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			if idx := openIndex(cfg, logger); idx != nil {
				defer idx.Close()
				ed.Index = idx
			}

			res, err := ed.Close(ctx, issue, editor.CloseOptions{Reason: reason, RelatedPR: pr})
			if err != nil {
				return err
			}
			if err := github.SetOutput("facts_persisted", strconv.Itoa(res.FactsPersisted)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "closed #%d: %d fact(s) persisted, %d indexed\n",
				issue, res.FactsPersisted, res.FactsIndexed)
			return renderMarkdown(cmd.OutOrStdout(), res.Summary)
		},
	}
	addIssueFlag(cmd, &issue)
	cmd.Flags().StringVar(&reason, "reason", github.ReasonCompleted, "completed, not_planned, duplicate or free text")
	cmd.Flags().IntVar(&pr, "pr", 0, "pull request that integrated the content")
	return cmd
}
