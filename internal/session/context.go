package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultSystemWarnThreshold is the share of SystemBudget above which
// CheckSystemBudget warns.
const DefaultSystemWarnThreshold = 0.9

// PreparedContext is what an LLM call is built from.
type PreparedContext struct {
	SystemPrompt string
	Conversation string
	Budget       *TokenBudget
	Summary      *ConversationSummary // nil when no summarization happened
	Truncated    bool                 // summarization failed and the conversation was truncated
}

// Preparer measures a request against the model budget and summarizes the
// conversation when it does not fit.
type Preparer struct {
	Counter    *Counter
	Summarizer *Summarizer
	Model      string
	Options    BudgetOptions
	Logger     *slog.Logger

	// WarnThreshold is passed to CheckSystemBudget; 0 means DefaultSystemWarnThreshold.
	WarnThreshold float64

	// FallbackToTruncation makes Prepare trim and truncate the conversation
	// instead of failing when the summarization call errors.
	FallbackToTruncation bool
}

func (p *Preparer) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Prepare builds the budget, counts every part and summarizes the
// conversation if NeedsSummarization reports true. Budget overage alone is
// never an error; it is reported through CheckSystemBudget.
func (p *Preparer) Prepare(ctx context.Context, comments []Comment, systemPrompt, currentContent string, facts []string) (*PreparedContext, error) {
	budget, err := GetContextBudget(p.Model, p.Options)
	if err != nil {
		return nil, fmt.Errorf("context budget: %w", err)
	}

	conversation := FormatConversation(comments)
	budget.SystemTokens = p.Counter.Count(ctx, systemPrompt)
	budget.ContentTokens = p.Counter.Count(ctx, currentContent)
	budget.ConversationTokens = p.Counter.Count(ctx, conversation)

	out := &PreparedContext{SystemPrompt: systemPrompt, Budget: budget}

	if budget.NeedsSummarization() {
		log := p.logger()
		log.Info(fmt.Sprintf("Context budget exceeded (%d / %d). Summarizing conversation...",
			budget.TotalUsed(), budget.AvailableInput))

		summary, err := p.summarize(ctx, comments, facts, budget.ConversationBudget)
		switch {
		case err == nil:
			conversation = summary.Text
			budget.ConversationTokens = summary.SummaryTokens
			out.Summary = summary
			log.Info(fmt.Sprintf("Summarized %d comments. Saved %.1f%% tokens.",
				summary.CommentsSummarized, summary.SavingsPercent),
				"original_tokens", summary.OriginalTokens, "summary_tokens", summary.SummaryTokens)
		case p.FallbackToTruncation:
			log.Warn("summarization failed, truncating conversation", "error", err)
			trimmed := TrimComments(ctx, p.Counter, comments, budget.ConversationBudget, p.keepRecent())
			conversation = TruncateToBudget(ctx, p.Counter, FormatConversation(trimmed), budget.ConversationBudget, true)
			budget.ConversationTokens = p.Counter.Count(ctx, conversation)
			out.Truncated = true
		default:
			return nil, err
		}
	}

	out.Conversation = conversation
	CheckSystemBudget(p.logger(), budget, p.WarnThreshold)
	return out, nil
}

func (p *Preparer) summarize(ctx context.Context, comments []Comment, facts []string, target int) (*ConversationSummary, error) {
	if p.Summarizer == nil {
		return nil, errors.New("conversation needs summarization but no summarizer is configured")
	}
	return p.Summarizer.Summarize(ctx, comments, facts, target)
}

func (p *Preparer) keepRecent() int {
	if p.Summarizer != nil && p.Summarizer.KeepRecent > 0 {
		return p.Summarizer.KeepRecent
	}
	return DefaultKeepRecent
}

// CheckSystemBudget logs a WARNING when the system prompt passes threshold of
// its allowance and a CRITICAL error when total usage exceeds the available
// input. It never changes control flow.
func CheckSystemBudget(logger *slog.Logger, b *TokenBudget, threshold float64) {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultSystemWarnThreshold
	}

	if b.SystemBudget > 0 && float64(b.SystemTokens) > float64(b.SystemBudget)*threshold {
		pct := float64(b.SystemTokens) / float64(b.SystemBudget) * 100
		logger.Warn(fmt.Sprintf("WARNING: System prompt at %.0f%% of budget (%d/%d tokens). "+
			"Consider reducing persona/guidelines/knowledge base size.",
			pct, b.SystemTokens, b.SystemBudget))
	}

	if b.IsOverBudget() {
		logger.Error(fmt.Sprintf("CRITICAL: Context is over budget! Total: %d, Available: %d. "+
			"Responses may be truncated or fail.", b.TotalUsed(), b.AvailableInput))
	}
}

// TrimComments drops the oldest comments until the formatted conversation
// fits maxTokens, always keeping the keepRecent most recent ones.
func TrimComments(ctx context.Context, counter *Counter, comments []Comment, maxTokens, keepRecent int) []Comment {
	if len(comments) <= keepRecent {
		return comments
	}
	for len(comments) > keepRecent && counter.Count(ctx, FormatConversation(comments)) > maxTokens {
		comments = comments[1:]
	}
	return comments
}
