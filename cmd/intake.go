package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/editor"
)

// issueCommand builds a command that runs fn with an LLM-backed editor for
// the issue named by --issue.
func issueCommand(use, short, long string, fn func(ctx context.Context, cmd *cobra.Command, ed *editor.Editor, issue int) error) *cobra.Command {
	var issue int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
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

			ed, err := buildEditor(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			return fn(ctx, cmd, ed, issue)
		},
	}
	addIssueFlag(cmd, &issue)
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	return issueCommand("discover",
		"Open a new memo with discovery questions",
		"Asks the author a few questions about intent and audience before any critique and\n"+
			"records them, with the default PR prerequisites, in the issue's state block. Nothing\n"+
			"happens when the author asked to skip ahead or discovery has already started.",
		func(ctx context.Context, cmd *cobra.Command, ed *editor.Editor, issue int) error {
			res, err := ed.Discover(ctx, issue)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "discovery skipped on #%d: %s\n", issue, res.Reason)
			}
			phase := ""
			if res.State != nil {
				phase = res.State.Phase
			}
			if err := setOutputs([][2]string{
				{"skipped", strconv.FormatBool(res.Skipped)},
				{"questions", strconv.Itoa(len(res.Questions))},
				{"mood", res.Mood},
				{"phase", phase},
			}); err != nil {
				return err
			}
			if res.Comment != "" {
				return renderMarkdown(cmd.OutOrStdout(), res.Comment)
			}
			return nil
		})
}

func newAnalyzeCmd() *cobra.Command {
	return issueCommand("analyze",
		"Review the voice memo transcript in an issue",
		"Posts an editorial analysis of the transcript: a cleaned version, what it is about,\n"+
			"where it might fit and what needs the author. The issue moves to the feedback phase.",
		func(ctx context.Context, cmd *cobra.Command, ed *editor.Editor, issue int) error {
			res, err := ed.Analyze(ctx, issue)
			if err != nil {
				return err
			}
			if err := setOutputs([][2]string{
				{"response_comment", res.Comment},
				{"new_questions", strconv.Itoa(len(res.NewQuestions))},
				{"phase", res.State.Phase},
			}); err != nil {
				return err
			}
			return renderMarkdown(cmd.OutOrStdout(), res.Comment)
		})
}

func newAskCmd() *cobra.Command {
	return issueCommand("ask",
		"Answer the author's question in an issue",
		"Answers the question in the issue body using the book's editorial context. A question\n"+
			"that names a chapter by number gets the start of that chapter as reference.",
		func(ctx context.Context, cmd *cobra.Command, ed *editor.Editor, issue int) error {
			res, err := ed.Ask(ctx, issue)
			if err != nil {
				return err
			}
			if err := setOutputs([][2]string{{"response", res.Reply}}); err != nil {
				return err
			}
			return renderMarkdown(cmd.OutOrStdout(), res.Reply)
		})
}

func newExtractAnswerCmd() *cobra.Command {
	return issueCommand("extract-answer",
		"Store the author's answer to a question issue in the knowledge base",
		"Summarizes the author's replies to an editor question into a Q&A record in the\n"+
			"knowledge base and labels the issue knowledge-extracted. Issues without replies or\n"+
			"already extracted are skipped.",
		func(ctx context.Context, cmd *cobra.Command, ed *editor.Editor, issue int) error {
			res, err := ed.ExtractAnswer(ctx, issue)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "#%d skipped: %s\n", issue, res.Reason)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "#%d stored as %s\n", issue, res.Record.ID)
			}
			return setOutputs([][2]string{
				{"skipped", strconv.FormatBool(res.Skipped)},
				{"record_id", res.Record.ID},
			})
		})
}
