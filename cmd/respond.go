package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/github"
)

// addIssueFlag registers --issue, defaulting to $ISSUE_NUMBER.
func addIssueFlag(cmd *cobra.Command, n *int) {
	cmd.Flags().IntVarP(n, "issue", "i", github.IssueFromEnv(), "issue number (default $"+github.EnvIssueNumber+")")
}

func requireIssue(n int) error {
	if n <= 0 {
		return errors.New("an issue number is required (--issue or $" + github.EnvIssueNumber + ")")
	}
	return nil
}

// signalContext cancels on Ctrl+C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newRespondCmd() *cobra.Command {
	var (
		issue       int
		commentFile string
	)
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Act on the latest comment on an issue as the editor",
		Long: "Reads the issue, its comments and the editorial context of the repository and acts on\n" +
			"the comment: \"/ai-editor place in <file>.md\" records where the content goes,\n" +
			"\"/ai-editor create PR\" prepares the content for a pull request when no prerequisite\n" +
			"blocks it, and anything else gets a reply with new questions recorded in the issue's\n" +
			"state block. Results are written as workflow step outputs.\n\n" +
			"The comment to answer comes from --comment-file (\"-\" for stdin), $COMMENT_BODY, or\n" +
			"the last comment on the issue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireIssue(issue); err != nil {
				return err
			}
			comment, err := readComment(cmd.InOrStdin(), commentFile)
			if err != nil {
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
			out, err := ed.Handle(ctx, issue, comment)
			if err != nil {
				return err
			}

			logger.Info("handled comment", "issue", issue,
				"command", out.Command.Kind.String(),
				"new_questions", len(out.NewQuestions),
				"create_pr", out.CreatePR,
				"input_tokens", out.Usage.InputTokens,
				"output_tokens", out.Usage.OutputTokens)

			if err := setOutputs(out.Outputs()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			return nil
		},
	}
	addIssueFlag(cmd, &issue)
	cmd.Flags().StringVar(&commentFile, "comment-file", "", "file holding the comment to answer (\"-\" for stdin)")
	return cmd
}

// setOutputs writes workflow step outputs in order.
func setOutputs(outputs [][2]string) error {
	for _, o := range outputs {
		if err := github.SetOutput(o[0], o[1]); err != nil {
			return err
		}
	}
	return nil
}

func readComment(stdin io.Reader, path string) (string, error) {
	switch path {
	case "":
		return os.Getenv(github.EnvCommentBody), nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read comment from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read comment file: %w", err)
		}
		return string(data), nil
	}
}
