package editor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/state"
)

// Outcome is what Handle did with one author comment.
type Outcome struct {
	Command      Command
	Reply        string
	NewQuestions []string
	CreatePR     bool
	TargetFile   string
	Scope        string
	PRBody       string
	State        *state.ConversationState
	Usage        provider.Usage
}

// Outputs lists the workflow step outputs for o, in a fixed order. The PR
// fields are only present when a PR should be opened.
func (o *Outcome) Outputs() [][2]string {
	phase := state.PhaseDiscovery
	if o.State != nil && o.State.Phase != "" {
		phase = o.State.Phase
	}
	out := [][2]string{
		{"response_comment", o.Reply},
		{"new_questions", strconv.Itoa(len(o.NewQuestions))},
		{"phase", phase},
		{"create_pr", strconv.FormatBool(o.CreatePR)},
	}
	if o.CreatePR {
		out = append(out,
			[2]string{"target_file", o.TargetFile},
			[2]string{"scope", o.Scope},
			[2]string{"pr_body", o.PRBody},
		)
	}
	return out
}

// Handle routes an author comment: "/ai-editor create PR" prepares a pull
// request, "/ai-editor place in <file>.md" records the placement and anything
// else gets a conversational reply. An empty comment means the issue's last
// comment.
func (e *Editor) Handle(ctx context.Context, number int, comment string) (*Outcome, error) {
	if strings.TrimSpace(comment) == "" {
		comments, err := e.Issues.ListComments(ctx, number)
		if err != nil {
			return nil, err
		}
		if len(comments) > 0 {
			comment = comments[len(comments)-1].Body
		}
	}

	cmd := ParseCommand(comment)
	e.logger().Debug("handling comment", "issue", number, "command", cmd.Kind.String(), "target", cmd.Target)

	switch cmd.Kind {
	case CommandCreatePR:
		res, err := e.CreatePR(ctx, number, comment)
		if err != nil {
			return nil, err
		}
		return prOutcome(cmd, res), nil
	case CommandPlace:
		res, err := e.Place(ctx, number, cmd.Target)
		if err != nil {
			return nil, err
		}
		return prOutcome(cmd, res), nil
	default:
		res, err := e.Respond(ctx, number, comment)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Command:      cmd,
			Reply:        res.Reply,
			NewQuestions: res.NewQuestions,
			State:        res.State,
			Usage:        res.Usage,
		}, nil
	}
}

func prOutcome(cmd Command, res *PRResult) *Outcome {
	return &Outcome{
		Command:    cmd,
		Reply:      res.Reply,
		CreatePR:   res.CreatePR,
		TargetFile: res.TargetFile,
		Scope:      res.Scope,
		PRBody:     res.Body,
		State:      res.State,
		Usage:      res.Usage,
	}
}

// notifyFailure tells the author on the issue that action failed. A failure
// to post is only logged so the original error reaches the caller.
func (e *Editor) notifyFailure(ctx context.Context, number int, action string, err error) {
	notice := fmt.Sprintf("⚠️ The AI editor could not %s.\n\nError: %v\n\nPlease try again.", action, err)
	if nerr := e.Issues.CreateComment(ctx, number, notice); nerr != nil {
		e.logger().Error("post error notice failed", "issue", number, "error", nerr)
	}
}

func (e *Editor) editorialContext(log *slog.Logger) (*EditorialContext, error) {
	return LoadContext(e.repoDir(), filepath.Dir(e.knowledgePath()), log)
}
