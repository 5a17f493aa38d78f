package session

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/bookctl/bookctl/internal/provider"
)

// DefaultKeepRecent is the number of trailing comments never summarized.
const DefaultKeepRecent = 3

const summarizerSystemPrompt = "You are a precise summarizer. Extract only the essential information."

// Comment is one entry of an issue conversation.
type Comment struct {
	Author string
	Body   string
}

func (c Comment) author() string {
	if c.Author == "" {
		return "unknown"
	}
	return c.Author
}

// ConversationSummary is the result of SummarizeConversation. SummaryTokens
// can exceed OriginalTokens; SavingsPercent is then zero or negative.
type ConversationSummary struct {
	Text               string
	OriginalTokens     int
	SummaryTokens      int
	CommentsSummarized int
	SavingsPercent     float64
}

// Summarizer folds older comments into an LLM-written digest while keeping
// established facts and the most recent comments verbatim.
type Summarizer struct {
	Provider   provider.Provider
	Model      string
	Counter    *Counter
	KeepRecent int // 0 means DefaultKeepRecent
	MaxTokens  int // response limit for the summary call, 0 means DefaultMaxOutput
}

// Summarize reduces comments toward targetTokens. If the history already fits
// it is returned unchanged. Errors from the LLM call are returned to the caller.
func (s *Summarizer) Summarize(ctx context.Context, comments []Comment, facts []string, targetTokens int) (*ConversationSummary, error) {
	originalText := joinComments(comments, plainComment)
	originalTokens := s.Counter.Count(ctx, originalText)

	if originalTokens <= targetTokens {
		return &ConversationSummary{
			Text:           originalText,
			OriginalTokens: originalTokens,
			SummaryTokens:  originalTokens,
		}, nil
	}

	keep := s.KeepRecent
	if keep <= 0 {
		keep = DefaultKeepRecent
	}
	split := max(len(comments)-keep, 0)
	older, recent := comments[:split], comments[split:]
	recentText := joinComments(recent, boldComment)

	if len(older) == 0 {
		return &ConversationSummary{
			Text:           recentText,
			OriginalTokens: originalTokens,
			SummaryTokens:  s.Counter.Count(ctx, recentText),
		}, nil
	}

	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutput
	}
	prompt := buildSummaryPrompt(joinComments(older, plainComment), facts)
	resp, err := provider.Prompt(ctx, s.Provider, s.Model, summarizerSystemPrompt, prompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("summarize LLM call failed: %w", err)
	}

	var sb strings.Builder
	if len(facts) > 0 {
		sb.WriteString("## Established Facts (PRESERVE THESE)\n")
		sb.WriteString(bulletList(facts))
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Conversation Summary (earlier discussion)\n\n")
	sb.WriteString(resp.Text)
	sb.WriteString("\n\n## Recent Discussion\n\n")
	sb.WriteString(recentText)

	text := sb.String()
	summaryTokens := s.Counter.Count(ctx, text)
	return &ConversationSummary{
		Text:               text,
		OriginalTokens:     originalTokens,
		SummaryTokens:      summaryTokens,
		CommentsSummarized: len(older),
		SavingsPercent:     savingsPercent(originalTokens, summaryTokens),
	}, nil
}

func buildSummaryPrompt(olderText string, facts []string) string {
	established := ""
	if len(facts) > 0 {
		established = "**Already established:**\n" + bulletList(facts)
	}
	return fmt.Sprintf(`Summarize this editorial conversation history concisely.

PRESERVE:
- All decisions made
- All questions asked by the editor
- Author's key responses
- Any established facts about the book

%s

CONVERSATION TO SUMMARIZE:
%s

OUTPUT FORMAT:
Write a brief summary (under 500 words) capturing:
1. What was discussed
2. What was decided
3. What questions were asked
4. What answers were given

Do NOT include any preamble. Start directly with the summary.`, established, olderText)
}

func savingsPercent(original, summary int) float64 {
	if original <= 0 {
		return 0
	}
	pct := (1 - float64(summary)/float64(original)) * 100
	return math.Round(pct*10) / 10
}

func plainComment(c Comment) string { return c.author() + ": " + c.Body }
func boldComment(c Comment) string  { return "**" + c.author() + ":** " + c.Body }

func joinComments(comments []Comment, format func(Comment) string) string {
	parts := make([]string, len(comments))
	for i, c := range comments {
		parts[i] = format(c)
	}
	return strings.Join(parts, "\n\n")
}

// FormatConversation renders comments the way they are sent to the model.
func FormatConversation(comments []Comment) string {
	return joinComments(comments, boldComment)
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
