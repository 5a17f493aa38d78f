package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/editor"
	"github.com/bookctl/bookctl/internal/state"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit the conversation state kept in an issue body",
	}
	cmd.AddCommand(
		newStateShowCmd(),
		newStateCompactCmd(),
		newStateEstablishCmd(),
		newStateAnswerCmd(),
		newStateRequireCmd(),
		newStatePhaseCmd(),
	)
	return cmd
}

// withStateEditor runs fn with an editor that talks to GitHub but not to an LLM.
func withStateEditor(issue int, fn func(context.Context, *editor.Editor) error) error {
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
	return fn(ctx, ed)
}

func newStateShowCmd() *cobra.Command {
	var (
		issue   int
		asJSON  bool
		blocker string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the state block of an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				s, err := ed.ShowState(ctx, issue)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(s)
				}
				md := state.Format(s)
				if blocker != "" {
					if b := state.FormatPrerequisiteBlocker(s, blocker); b != "" {
						md += "\n\n" + b
					}
				}
				return renderMarkdown(out, md)
			})
		},
	}
	addIssueFlag(cmd, &issue)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	cmd.Flags().StringVar(&blocker, "blocker", "", "also explain what blocks this action (e.g. "+state.DefaultBlocks+")")
	return cmd
}

func newStateCompactCmd() *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Drop answered questions and met prerequisites from the state block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				res, err := ed.CompactState(ctx, issue)
				if err != nil {
					return err
				}
				c := res.Compacted
				if c.ItemsCompacted == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to compact")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "compacted %d item(s), %d -> %d tokens\n\n%s\n",
					c.ItemsCompacted, c.OriginalTokens, c.CompactedTokens, c.Summary)
				return nil
			})
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}

func newStateEstablishCmd() *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:   "establish KEY VALUE...",
		Short: "Record an established fact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				value := strings.Join(args[1:], " ")
				if _, err := ed.Establish(ctx, issue, args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d: %s = %s\n", issue, args[0], value)
				return nil
			})
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}

func newStateAnswerCmd() *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:   "answer TEXT",
		Short: "Mark the first open question containing TEXT as answered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				s, err := ed.Answer(ctx, issue, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d: %d question(s) still open\n", issue, len(s.UnansweredQuestions()))
				return nil
			})
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}

func newStateRequireCmd() *cobra.Command {
	var (
		issue    int
		blocks   string
		met      bool
		defaults bool
	)
	cmd := &cobra.Command{
		Use:   "require [REQUIREMENT...]",
		Short: "Add a prerequisite, or mark one met with --met",
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement := strings.Join(args, " ")
			if requirement == "" && !defaults {
				return fmt.Errorf("a requirement or --defaults is needed")
			}
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				if defaults {
					_, err := ed.Mutate(ctx, issue, func(s *state.ConversationState) error {
						for _, p := range state.DefaultPrerequisites() {
							s.AddPrerequisite(p.Requirement, p.Blocks)
						}
						return nil
					})
					if err != nil {
						return err
					}
				}
				if requirement == "" {
					return nil
				}
				s, err := ed.Require(ctx, issue, requirement, blocks, met)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d: %d prerequisite(s) unmet for %s\n",
					issue, len(s.UnmetPrerequisites(blocksOrDefault(blocks))), blocksOrDefault(blocks))
				return nil
			})
		},
	}
	addIssueFlag(cmd, &issue)
	cmd.Flags().StringVar(&blocks, "blocks", state.DefaultBlocks, "action the prerequisite gates")
	cmd.Flags().BoolVar(&met, "met", false, "mark the first prerequisite containing REQUIREMENT as met")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "add the default outline and content prerequisites")
	return cmd
}

func blocksOrDefault(b string) string {
	if b == "" {
		return state.DefaultBlocks
	}
	return b
}

func newStatePhaseCmd() *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:       "phase PHASE",
		Short:     "Move the issue to a workflow phase",
		Args:      cobra.ExactArgs(1),
		ValidArgs: state.Phases,
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := strings.ToLower(strings.TrimSpace(args[0]))
			if !slices.Contains(state.Phases, phase) {
				return fmt.Errorf("unknown phase %q (want one of %s)", args[0], strings.Join(state.Phases, ", "))
			}
			return withStateEditor(issue, func(ctx context.Context, ed *editor.Editor) error {
				if _, err := ed.SetPhase(ctx, issue, phase); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d: %s\n", issue, state.PhaseLabel(phase))
				return nil
			})
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}
