package session

import (
	"errors"
	"fmt"

	"github.com/bookctl/bookctl/internal/provider"
)

const (
	DefaultMaxOutput         = 16000
	DefaultSystemRatio       = 0.3
	DefaultConversationRatio = 0.4
	DefaultContentRatio      = 0.3

	// DefaultSummarizeThreshold is the fraction of available input at which
	// the conversation is summarized even if it fits its own allowance.
	DefaultSummarizeThreshold = 0.8
)

var (
	ErrOutputExceedsWindow = errors.New("max output tokens exceed the model context window")
	ErrNegativeRatio       = errors.New("budget ratios must be non-negative")
)

// TokenBudget partitions a model's context window for one LLM call.
// Usage counters are filled in by a single Prepare call and never accumulated
// across calls.
type TokenBudget struct {
	Model          string
	ContextWindow  int // total context window of the model
	MaxOutput      int // reserved for the response
	AvailableInput int // ContextWindow - MaxOutput, never negative

	SystemBudget       int
	ConversationBudget int
	ContentBudget      int

	SystemTokens       int
	ConversationTokens int
	ContentTokens      int

	// SummarizeThreshold is a fraction of AvailableInput; zero means
	// DefaultSummarizeThreshold.
	SummarizeThreshold float64
}

// BudgetOptions configures NewTokenBudget.
type BudgetOptions struct {
	MaxOutput          int
	SystemRatio        float64
	ConversationRatio  float64
	ContentRatio       float64
	SummarizeThreshold float64
}

// DefaultBudgetOptions returns 16000 output tokens and a 30/40/30 split.
func DefaultBudgetOptions() BudgetOptions {
	return BudgetOptions{
		MaxOutput:          DefaultMaxOutput,
		SystemRatio:        DefaultSystemRatio,
		ConversationRatio:  DefaultConversationRatio,
		ContentRatio:       DefaultContentRatio,
		SummarizeThreshold: DefaultSummarizeThreshold,
	}
}

// GetContextBudget builds a budget for model using the capability registry.
// Unregistered models get provider.DefaultContextWindow.
func GetContextBudget(model string, opts BudgetOptions) (*TokenBudget, error) {
	caps := provider.Lookup(model)
	b, err := NewTokenBudget(caps.ContextWindow, opts)
	b.Model = caps.Model
	return b, err
}

// NewTokenBudget partitions contextWindow according to opts.
//
// The returned budget is always usable: a negative available input is clamped
// to zero and ratios summing above 1 are scaled down. Those conditions are
// still reported through err so callers can treat them as configuration errors.
// If all three ratios are zero the default split is used.
func NewTokenBudget(contextWindow int, opts BudgetOptions) (*TokenBudget, error) {
	var errs []error

	sys, conv, content := opts.SystemRatio, opts.ConversationRatio, opts.ContentRatio
	if sys == 0 && conv == 0 && content == 0 {
		sys, conv, content = DefaultSystemRatio, DefaultConversationRatio, DefaultContentRatio
	}
	if sys < 0 || conv < 0 || content < 0 {
		errs = append(errs, fmt.Errorf("%w: system=%v conversation=%v content=%v", ErrNegativeRatio, sys, conv, content))
		sys, conv, content = max(sys, 0), max(conv, 0), max(content, 0)
	}
	if sum := sys + conv + content; sum > 1+1e-9 {
		sys, conv, content = sys/sum, conv/sum, content/sum
	}

	available := contextWindow - opts.MaxOutput
	if available < 0 {
		errs = append(errs, fmt.Errorf("%w: window=%d max_output=%d", ErrOutputExceedsWindow, contextWindow, opts.MaxOutput))
		available = 0
	}

	b := &TokenBudget{
		ContextWindow:      contextWindow,
		MaxOutput:          opts.MaxOutput,
		AvailableInput:     available,
		SystemBudget:       int(float64(available) * sys),
		ConversationBudget: int(float64(available) * conv),
		ContentBudget:      int(float64(available) * content),
		SummarizeThreshold: opts.SummarizeThreshold,
	}
	return b, errors.Join(errs...)
}

// TotalUsed is the sum of the three usage counters.
func (b *TokenBudget) TotalUsed() int {
	return b.SystemTokens + b.ConversationTokens + b.ContentTokens
}

// Remaining is AvailableInput minus TotalUsed; negative when over budget.
func (b *TokenBudget) Remaining() int {
	return b.AvailableInput - b.TotalUsed()
}

// IsOverBudget reports whether usage exceeds the available input.
func (b *TokenBudget) IsOverBudget() bool {
	return b.TotalUsed() > b.AvailableInput
}

// NeedsSummarization reports whether the conversation exceeds its own
// allowance, or total usage exceeds SummarizeThreshold of available input.
func (b *TokenBudget) NeedsSummarization() bool {
	if b.ConversationTokens > b.ConversationBudget {
		return true
	}
	return float64(b.TotalUsed()) > float64(b.AvailableInput)*b.threshold()
}

// SummarizeAt returns the total usage above which summarization triggers.
func (b *TokenBudget) SummarizeAt() int {
	return int(float64(b.AvailableInput) * b.threshold())
}

func (b *TokenBudget) threshold() float64 {
	if b.SummarizeThreshold <= 0 {
		return DefaultSummarizeThreshold
	}
	return b.SummarizeThreshold
}
