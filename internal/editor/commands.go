package editor

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bookctl/bookctl/internal/github"
)

// Mention is the prefix authors use to address the editor.
const Mention = "/ai-editor"

// UncategorizedTarget parks content that has no chapter yet.
const UncategorizedTarget = "uncategorized.md"

// CommandKind is what an author comment asks the editor to do.
type CommandKind int

const (
	CommandReply CommandKind = iota
	CommandPlace
	CommandCreatePR
)

func (k CommandKind) String() string {
	switch k {
	case CommandPlace:
		return "place"
	case CommandCreatePR:
		return "create_pr"
	default:
		return "reply"
	}
}

// Command is a parsed author comment.
type Command struct {
	Kind   CommandKind
	Target string // file name from "place in <file>.md", if any
}

var placeIn = regexp.MustCompile(`place in (\S+\.md)`)

// ParseCommand reads the editor command out of comment. Anything that is not
// a create-PR or placement command is a plain reply.
func ParseCommand(comment string) Command {
	lower := strings.ToLower(comment)
	cmd := Command{Target: placementTarget(lower)}
	switch {
	case strings.Contains(lower, Mention+" create pr"):
		cmd.Kind = CommandCreatePR
	case strings.Contains(lower, Mention+" place in") && cmd.Target != "":
		cmd.Kind = CommandPlace
	default:
		cmd.Kind = CommandReply
	}
	return cmd
}

func placementTarget(lower string) string {
	m := placeIn.FindStringSubmatch(lower)
	if m == nil {
		return ""
	}
	name := path.Base(strings.ReplaceAll(m[1], `\`, "/"))
	if name == "." || name == "/" || name == ".md" {
		return ""
	}
	return name
}

// findTarget returns the most recent placement named in the comments.
func findTarget(comments []github.Comment) string {
	for i := len(comments) - 1; i >= 0; i-- {
		if t := placementTarget(strings.ToLower(comments[i].Body)); t != "" {
			return t
		}
	}
	return ""
}

// TargetPath maps a placement file name to its path in the book repository.
// Uncategorized content gets one file per issue.
func TargetPath(filename string, issueNumber int) string {
	if filename == UncategorizedTarget {
		return fmt.Sprintf("uncategorized/voice-memo-%d.md", issueNumber)
	}
	return ChaptersDir + "/" + filename
}
