package editor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/state"
)

const (
	// PlacementFact is the state key holding the file a PR will write to.
	PlacementFact = "Placement"

	// CleanedContentFile receives the prepared content of the last PR run,
	// relative to the repository root.
	CleanedContentFile = "output/cleaned-content.md"

	prMaxTokens       = 4000
	chapterExcerpt    = 2000
	historyCommentCap = 1000
	appendSeparator   = "\n\n---\n\n"
)

const placementRequest = "**I need to know where to put this content.**\n\n" +
	"Please specify the target by saying one of:\n" +
	"- `/ai-editor place in chapter-03.md` - to add to an existing chapter\n" +
	"- `/ai-editor place in new-chapter.md` - to create a new chapter\n" +
	"- `/ai-editor place in uncategorized.md` - if you're not sure yet\n\n" +
	"Then say `/ai-editor create PR` again."

// PRResult describes one create-PR request. CreatePR is false when the editor
// asked for a placement or the prerequisite gate was closed; Reply then says
// why.
type PRResult struct {
	CreatePR   bool
	Blocked    bool
	TargetFile string // path in the book repository
	Scope      string // short name for the branch and commit
	Body       string // pull request description
	Reply      string // the comment posted on the issue
	State      *state.ConversationState
	Usage      provider.Usage
}

// CreatePR prepares the issue's content for a pull request. The target file
// comes from a "place in <file>.md" in comment, the latest one in the issue's
// comments, or an earlier Place. Unmet pr_creation prerequisites block the
// request and the blocker is posted instead. On success the prepared content
// is written into the working tree at RepoDir for the workflow to commit.
func (e *Editor) CreatePR(ctx context.Context, number int, comment string) (*PRResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}
	res, err := e.createPR(ctx, issue, s, comment)
	if err != nil {
		e.notifyFailure(ctx, number, "prepare this PR", err)
		return nil, fmt.Errorf("create PR for issue #%d: %w", number, err)
	}
	return res, nil
}

func (e *Editor) createPR(ctx context.Context, issue *github.Issue, s *state.ConversationState, comment string) (*PRResult, error) {
	log := e.logger().With("issue", issue.Number)

	comments, err := e.Issues.ListComments(ctx, issue.Number)
	if err != nil {
		return nil, err
	}

	target := resolveTarget(comment, comments, s, issue.Number)
	if target == "" {
		if err := e.Issues.CreateComment(ctx, issue.Number, placementRequest); err != nil {
			return nil, err
		}
		log.Info("create PR needs a placement")
		return &PRResult{Reply: placementRequest, State: s}, nil
	}

	if s.HasUnmetPrerequisites(state.DefaultBlocks) {
		blocker := state.FormatPrerequisiteBlocker(s, state.DefaultBlocks)
		if err := e.Issues.CreateComment(ctx, issue.Number, blocker); err != nil {
			return nil, err
		}
		log.Info("create PR blocked", "unmet", len(s.UnmetPrerequisites(state.DefaultBlocks)))
		return &PRResult{Blocked: true, TargetFile: target, Reply: blocker, State: s}, nil
	}

	ec, err := e.editorialContext(log)
	if err != nil {
		return nil, err
	}
	existing, err := readExcerpt(filepath.Join(e.repoDir(), filepath.FromSlash(target)), chapterExcerpt)
	if err != nil {
		return nil, err
	}

	model := e.model()
	prompt := buildPRPrompt(state.Content(issue.Body), comments, target, existing)
	completion, err := provider.Prompt(ctx, e.Provider, model, ec.SystemPrompt(), prompt, prMaxTokens)
	if err != nil {
		return nil, err
	}

	content := preparedContent(completion.Text)
	if err := e.writeRepoFile(target, content, true); err != nil {
		return nil, err
	}
	if err := e.writeRepoFile(CleanedContentFile, content, false); err != nil {
		return nil, err
	}

	reply := fmt.Sprintf("Creating PR to integrate content into `%s`.", target)
	if err := e.Issues.CreateComment(ctx, issue.Number, reply); err != nil {
		return nil, err
	}
	log.Info("prepared PR content", "target", target, "model", model,
		"input_tokens", completion.Usage.InputTokens, "output_tokens", completion.Usage.OutputTokens)

	return &PRResult{
		CreatePR:   true,
		TargetFile: target,
		Scope:      scopeOf(target),
		Body:       formatPRBody(target, issue.Number, completion.Text, usageFooter(model, completion.Usage)),
		Reply:      reply,
		State:      s,
		Usage:      completion.Usage,
	}, nil
}

// Place records where the issue's content should go and acknowledges it.
func (e *Editor) Place(ctx context.Context, number int, filename string) (*PRResult, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if !strings.HasSuffix(filename, ".md") || filename == ".md" {
		return nil, fmt.Errorf("place: %q is not a markdown file name", filename)
	}
	target := TargetPath(filename, number)
	s, err := e.Mutate(ctx, number, func(s *state.ConversationState) error {
		s.EstablishFact(PlacementFact, target)
		return nil
	})
	if err != nil {
		return nil, err
	}

	reply := fmt.Sprintf("Got it! I'll target `%s` when creating the PR.\n\nWhen you're ready, just say `/ai-editor create PR`.", target)
	if err := e.Issues.CreateComment(ctx, number, reply); err != nil {
		return nil, err
	}
	e.logger().Info("recorded placement", "issue", number, "target", target)
	return &PRResult{TargetFile: target, Scope: scopeOf(target), Reply: reply, State: s}, nil
}

// resolveTarget returns the repository path content should be written to, or
// "" when the author has not said.
func resolveTarget(comment string, comments []github.Comment, s *state.ConversationState, issueNumber int) string {
	if name := placementTarget(strings.ToLower(comment)); name != "" {
		return TargetPath(name, issueNumber)
	}
	if name := findTarget(comments); name != "" {
		return TargetPath(name, issueNumber)
	}
	if p, ok := s.Fact(PlacementFact); ok && strings.HasSuffix(p, ".md") && filepath.IsLocal(filepath.FromSlash(p)) {
		return p
	}
	return ""
}

func scopeOf(target string) string {
	if strings.HasPrefix(target, "uncategorized/") {
		return "uncategorized"
	}
	return strings.TrimSuffix(path.Base(target), ".md")
}

// readExcerpt returns up to n bytes of the file at p, or "" when it does not
// exist.
func readExcerpt(p string, n int) (string, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) > n {
		data = data[:n]
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// writeRepoFile writes content to rel under RepoDir. With appendExisting an
// existing file keeps its text and gets content after a rule.
func (e *Editor) writeRepoFile(rel, content string, appendExisting bool) error {
	p := filepath.Join(e.repoDir(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(rel), err)
	}
	data := content
	if appendExisting {
		old, err := os.ReadFile(p)
		switch {
		case err == nil:
			data = strings.TrimRight(string(old), "\n") + appendSeparator + content
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("read %s: %w", rel, err)
		}
	}
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func buildPRPrompt(memo string, comments []github.Comment, target, existing string) string {
	var b strings.Builder
	b.WriteString("You are a professional book editor preparing content for integration into a manuscript.\n\n")

	b.WriteString("**Conversation so far:**\n\n")
	b.WriteString("**Original voice memo:**\n" + memo + "\n\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "**%s:** %s\n\n", c.Author, truncateRunes(c.Body, historyCommentCap))
	}

	fmt.Fprintf(&b, "**Target file:** `%s`\n\n", target)
	if existing != "" {
		b.WriteString("**Existing content in this file (excerpt):**\n" + existing + "\n\n")
	} else {
		b.WriteString("**This will be a new file.**\n\n")
	}

	b.WriteString(`Based on the conversation, prepare the content for integration:

1. Take the original voice memo and any clarifications from the conversation.
2. Clean it up following the guidelines while preserving the author's voice.
3. Apply any specific changes the author asked for.
4. Format it to fit with existing content if appending.

Respond with these sections:

### Prepared Content
The final text to add to the file, ready to commit.

### Editorial Notes
What you changed and why.

### Integration Recommendation
Where in the file this belongs and anything the author should check.`)
	return b.String()
}

var preparedSection = regexp.MustCompile(`(?s)### Prepared Content\s*\n(.*?)(?:### Editorial Notes|### Integration|\z)`)

// preparedContent pulls the Prepared Content section out of a reply, or
// returns the whole reply when the model ignored the layout.
func preparedContent(reply string) string {
	if m := preparedSection.FindStringSubmatch(reply); m != nil {
		if c := strings.TrimSpace(m[1]); c != "" {
			return c
		}
	}
	return strings.TrimSpace(reply)
}

func formatPRBody(target string, issueNumber int, reply, usage string) string {
	return fmt.Sprintf(`## Editorial Integration

**Target:** `+"`%s`"+`
**Source:** Issue #%d

---

%s

---

### Editorial Checklist

- [ ] Content flows naturally in context
- [ ] Author's voice is preserved
- [ ] No redundancy with other sections
- [ ] Formatting matches book style

---

<sub>%s</sub>`, target, issueNumber, reply, usage)
}

func usageFooter(model string, u provider.Usage) string {
	return fmt.Sprintf("%s · %d in / %d out tokens", model, u.InputTokens, u.OutputTokens)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
