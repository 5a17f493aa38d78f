package session

import (
	"context"
	"fmt"
	"strings"
)

const (
	lightCompactMaxItems  = 3
	lightCompactMaxTokens = 500
	maxCompactReferences  = 5
)

// CompletedItems is the finished work to fold into a short reference.
type CompletedItems struct {
	Questions     []string
	Prerequisites []string
	ClosedIssues  []int
	MergedPRs     []int
}

// CompactedContext is the result of CompactCompletedItems.
type CompactedContext struct {
	Summary         string
	ItemsCompacted  int
	References      []string
	OriginalTokens  int
	CompactedTokens int
}

// CompactCompletedItems replaces answered questions and met prerequisites
// with a count-based sentence plus pointers to closed issues and merged PRs.
// Up to three short items are listed inline instead.
func CompactCompletedItems(ctx context.Context, counter *Counter, in CompletedItems) CompactedContext {
	items := make([]string, 0, len(in.Questions)+len(in.Prerequisites))
	items = append(items, in.Questions...)
	items = append(items, in.Prerequisites...)
	if len(items) == 0 {
		return CompactedContext{}
	}

	originalTokens := counter.Count(ctx, strings.Join(items, "\n"))

	var refs []string
	for _, n := range in.ClosedIssues {
		refs = append(refs, fmt.Sprintf("Issue #%d (closed)", n))
	}
	for _, n := range in.MergedPRs {
		refs = append(refs, fmt.Sprintf("PR #%d (merged)", n))
	}

	if len(items) <= lightCompactMaxItems && originalTokens < lightCompactMaxTokens {
		return CompactedContext{
			Summary:         "Completed: " + strings.Join(items[:min(len(items), lightCompactMaxItems)], "; "),
			ItemsCompacted:  len(items),
			References:      refs,
			OriginalTokens:  originalTokens,
			CompactedTokens: originalTokens,
		}
	}

	var parts []string
	if len(in.Questions) > 0 {
		parts = append(parts, fmt.Sprintf("%d questions answered", len(in.Questions)))
	}
	if len(in.Prerequisites) > 0 {
		parts = append(parts, fmt.Sprintf("%d prerequisites met", len(in.Prerequisites)))
	}
	if len(in.ClosedIssues) > 0 {
		parts = append(parts, fmt.Sprintf("%d issues resolved", len(in.ClosedIssues)))
	}
	if len(in.MergedPRs) > 0 {
		parts = append(parts, fmt.Sprintf("%d PRs merged", len(in.MergedPRs)))
	}

	summary := "Previously completed: " + strings.Join(parts, ", ") + "."
	if len(refs) > 0 {
		summary += " See: " + strings.Join(refs[:min(len(refs), maxCompactReferences)], ", ")
		if extra := len(refs) - maxCompactReferences; extra > 0 {
			summary += fmt.Sprintf(" (+%d more)", extra)
		}
	}

	return CompactedContext{
		Summary:         summary,
		ItemsCompacted:  len(items),
		References:      refs,
		OriginalTokens:  originalTokens,
		CompactedTokens: counter.Count(ctx, summary),
	}
}

const (
	truncatedHead = "...(earlier content truncated)...\n\n"
	truncatedTail = "\n\n...(content truncated)..."
)

// TruncateToBudget cuts text to roughly maxTokens, marking the cut. With
// keepEnd the beginning is dropped instead of the end.
func TruncateToBudget(ctx context.Context, counter *Counter, text string, maxTokens int, keepEnd bool) string {
	if counter.Count(ctx, text) <= maxTokens {
		return text
	}

	// 4 chars per token, minus room for the indicator.
	target := max(maxTokens*4-50, 0)
	runes := []rune(text)
	if target > len(runes) {
		target = len(runes)
	}

	if keepEnd {
		return truncatedHead + string(runes[len(runes)-target:])
	}
	return string(runes[:target]) + truncatedTail
}
