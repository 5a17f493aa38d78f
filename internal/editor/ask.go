package editor

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/knowledge"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/state"
)

const (
	askMaxTokens     = 4000
	extractMaxTokens = 500
	chapterReference = 3000

	// ExtractedLabel marks issues whose answer is already in the knowledge base.
	ExtractedLabel = "knowledge-extracted"

	noQuestion = "I don't see a question in this issue. Could you add your question to the issue body?"
)

// AskResult is the editor's answer to an "ask the editor" issue.
type AskResult struct {
	Reply   string
	Chapter string // chapter file quoted into the prompt, if any
	Usage   provider.Usage
}

// Ask answers the question in the issue body with the book's editorial
// context. A question that names a chapter ("chapter 3") gets the start of
// that chapter quoted into the prompt.
func (e *Editor) Ask(ctx context.Context, number int) (*AskResult, error) {
	issue, err := e.Issues.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}

	question := state.Content(issue.Body)
	if question == "" {
		if err := e.Issues.CreateComment(ctx, number, noQuestion); err != nil {
			return nil, err
		}
		return &AskResult{Reply: noQuestion}, nil
	}

	res, err := e.ask(ctx, number, question)
	if err != nil {
		e.notifyFailure(ctx, number, "answer this question", err)
		return nil, fmt.Errorf("ask on issue #%d: %w", number, err)
	}
	return res, nil
}

func (e *Editor) ask(ctx context.Context, number int, question string) (*AskResult, error) {
	log := e.logger().With("issue", number)
	ec, err := e.editorialContext(log)
	if err != nil {
		return nil, err
	}

	chapter := referencedChapter(question, ec.Chapters)
	var excerpt string
	if chapter != "" {
		excerpt, err = readExcerpt(filepath.Join(e.repoDir(), ChaptersDir, chapter), chapterReference)
		if err != nil {
			return nil, err
		}
	}

	model := e.model()
	completion, err := provider.Prompt(ctx, e.Provider, model, ec.SystemPrompt(),
		buildAskPrompt(question, chapter, excerpt), askMaxTokens)
	if err != nil {
		return nil, err
	}

	reply := "## My Thoughts\n\n" + completion.Text + "\n\n---\n\n" +
		"<sub>" + usageFooter(model, completion.Usage) + "</sub>\n\n---\n\n" +
		"*Feel free to ask follow-up questions by commenting on this issue, or open a new \"Ask the Editor\" issue for a different topic.*"
	if err := e.Issues.CreateComment(ctx, number, reply); err != nil {
		return nil, err
	}
	log.Info("answered question", "model", model, "chapter", chapter)
	return &AskResult{Reply: reply, Chapter: chapter, Usage: completion.Usage}, nil
}

var chapterNumber = regexp.MustCompile(`chapter[- ]?(\d+)`)

// referencedChapter returns the chapter file a question names by number.
func referencedChapter(question string, chapters []string) string {
	m := chapterNumber.FindStringSubmatch(strings.ToLower(question))
	if m == nil {
		return ""
	}
	num := m[1]
	if len(num) < 2 {
		num = "0" + num
	}
	for _, ch := range chapters {
		if strings.Contains(strings.ToLower(ch), "chapter-"+num) {
			return ch
		}
	}
	return ""
}

func buildAskPrompt(question, chapter, excerpt string) string {
	var b strings.Builder
	b.WriteString("You are the author's AI editor. They have a question for you.\n\n")
	if excerpt != "" {
		fmt.Fprintf(&b, "## Referenced Chapter Content (%s)\n%s...\n\n", chapter, excerpt)
	}
	b.WriteString("## The Author's Question\n\n" + question + "\n\n---\n\n")
	b.WriteString(`Please answer the author's question thoughtfully. Consider:
- What you know about their book and writing style
- The editorial guidelines you follow
- Any relevant context from the chapters

Be conversational and helpful. If you need more context to answer well, say so.
If their question relates to a specific part of the manuscript, reference it specifically.`)
	return b.String()
}

// ExtractResult reports what ExtractAnswer stored.
type ExtractResult struct {
	Skipped bool
	Reason  string
	Record  knowledge.Record
	Usage   provider.Usage
}

// ExtractAnswer condenses the author's replies to a question issue into a
// Q&A record in the knowledge base and labels the issue knowledge-extracted.
// Issues without author replies, or already extracted, are skipped.
func (e *Editor) ExtractAnswer(ctx context.Context, number int) (*ExtractResult, error) {
	issue, err := e.Issues.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	log := e.logger().With("issue", number)
	if issue.HasLabel(ExtractedLabel) {
		return &ExtractResult{Skipped: true, Reason: "already extracted"}, nil
	}

	comments, err := e.Issues.ListComments(ctx, number)
	if err != nil {
		return nil, err
	}
	responses := authorResponses(comments)
	if len(responses) == 0 {
		log.Info("no author responses to extract")
		return &ExtractResult{Skipped: true, Reason: "no author responses"}, nil
	}

	question := questionFromBody(state.Content(issue.Body))
	prompt := fmt.Sprintf(`Extract the key information from this author response to store in a knowledge base.

**Original question:** %s

**Author's response(s):**
%s

Provide a concise, factual summary of the answer that can be used as context for future editorial work. Focus on:
- Specific facts and decisions
- Preferences and style choices
- Important context about the book or author's intent

Keep the summary under 200 words. Just provide the summary, no preamble.`, question, strings.Join(responses, "\n"))

	completion, err := provider.Prompt(ctx, e.Provider, e.model(), "", prompt, extractMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("extract answer from issue #%d: %w", number, err)
	}

	rec, written, err := knowledge.AppendQA(e.knowledgePath(), question, completion.Text, number)
	if err != nil {
		return nil, err
	}
	if err := e.Issues.AddLabels(ctx, number, ExtractedLabel); err != nil {
		log.Warn("label extracted issue failed", "error", err)
	}
	if !written {
		return &ExtractResult{Skipped: true, Reason: "knowledge base already has " + rec.ID, Record: rec, Usage: completion.Usage}, nil
	}
	log.Info("extracted answer", "id", rec.ID)
	return &ExtractResult{Record: rec, Usage: completion.Usage}, nil
}

// questionFromBody returns the text under a "## Question" heading up to the
// next rule, or the whole body.
func questionFromBody(body string) string {
	_, after, ok := strings.Cut(body, "## Question")
	if !ok {
		return strings.TrimSpace(body)
	}
	q, _, _ := strings.Cut(after, "---")
	q = strings.TrimSpace(q)
	q = strings.TrimSpace(strings.TrimPrefix(q, "from AI Editor"))
	return q
}

func authorResponses(comments []github.Comment) []string {
	var out []string
	for _, c := range comments {
		if isBot(c.Author) || strings.TrimSpace(c.Body) == "" {
			continue
		}
		out = append(out, c.Body)
	}
	return out
}

func isBot(login string) bool {
	return strings.HasSuffix(strings.ToLower(login), "[bot]")
}
