package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/knowledge"
)

func newKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "knowledge",
		Aliases: []string{"kb"},
		Short:   "Work with the cross-issue knowledge base",
	}
	cmd.AddCommand(newKnowledgePersistCmd(), newKnowledgeSearchCmd(), newKnowledgeShowCmd())
	return cmd
}

func newKnowledgePersistCmd() *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Append an issue's established facts to the knowledge base",
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
			n, err := ed.PersistFacts(ctx, issue)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d: %d fact(s) written to %s\n", issue, n, cfg.ResolvePath(cfg.KnowledgePath))
			return nil
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}

func newKnowledgeSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search established facts by key or value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := initConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			idx := openIndex(cfg, logger)
			if idx == nil {
				return errors.New("fact index unavailable; set index_path or BOOKCTL_INDEX_PATH")
			}
			defer idx.Close()

			// Refresh from the JSONL file so facts persisted by other runs show up.
			records, err := knowledge.ReadRecords(cfg.ResolvePath(cfg.KnowledgePath))
			if err != nil {
				return err
			}
			if _, err := idx.Sync(ctx, records); err != nil {
				return err
			}

			facts, err := idx.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(facts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching facts")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tISSUE")
			for _, f := range facts {
				fmt.Fprintf(w, "%s\t%s\t#%d\n", f.Key, f.Value, f.SourceIssue)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results")
	return cmd
}

func newKnowledgeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the knowledge section the editor sees in its prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := initConfig()
			if err != nil {
				return err
			}
			dir := filepath.Dir(cfg.ResolvePath(cfg.KnowledgePath))
			base, err := knowledge.Load(dir)
			if err != nil {
				logger.Warn("knowledge base partially loaded", "dir", dir, "error", err)
			}
			if base.Empty() {
				fmt.Fprintf(cmd.OutOrStdout(), "no knowledge in %s\n", dir)
				return nil
			}
			return renderMarkdown(cmd.OutOrStdout(), knowledge.FormatForPrompt(base))
		},
	}
}
