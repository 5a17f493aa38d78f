package editor

import (
	"context"

	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/knowledge"
	"github.com/bookctl/bookctl/internal/state"
)

// CloseOptions configures Close.
type CloseOptions struct {
	Reason    string // completed (default), not_planned, duplicate or free text
	RelatedPR int
}

// CloseResult reports what Close did.
type CloseResult struct {
	FactsPersisted int
	FactsIndexed   int
	Summary        string
	State          *state.ConversationState // compacted state now in the issue body
}

// Close ends the conversation on an issue: established facts go to the
// knowledge base, a closing summary is posted, the state block is compacted
// and the issue is closed with the reason.
func (e *Editor) Close(ctx context.Context, number int, opts CloseOptions) (*CloseResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}
	log := e.logger().With("issue", number)

	kbPath := e.knowledgePath()
	persisted, err := knowledge.Persist(s, kbPath)
	if err != nil {
		return nil, err
	}
	if persisted > 0 {
		log.Info("persisted facts to knowledge base", "count", persisted, "path", kbPath)
	}

	indexed, err := e.syncIndex(ctx, kbPath)
	if err != nil {
		// The JSONL file is authoritative; a stale index is rebuilt next time.
		log.Warn("fact index sync failed", "error", err)
	}

	displayPath := e.KnowledgePath
	if displayPath == "" {
		displayPath = state.DefaultKnowledgePath
	}
	summary := state.FormatClosingSummary(s, state.ClosingOptions{
		Reason:        opts.Reason,
		RelatedPR:     opts.RelatedPR,
		KnowledgePath: displayPath,
	})
	if err := e.Issues.CreateComment(ctx, number, summary); err != nil {
		return nil, err
	}

	compacted := state.Compact(s)
	if err := e.save(ctx, issue, compacted); err != nil {
		return nil, err
	}

	reason := opts.Reason
	if reason == "" {
		reason = github.ReasonCompleted
	}
	if err := e.Issues.CloseIssue(ctx, number, reason); err != nil {
		return nil, err
	}
	log.Info("closed issue", "reason", reason)

	return &CloseResult{
		FactsPersisted: persisted,
		FactsIndexed:   indexed,
		Summary:        summary,
		State:          compacted,
	}, nil
}

// PersistFacts writes the facts of an issue to the knowledge base without
// closing it.
func (e *Editor) PersistFacts(ctx context.Context, number int) (int, error) {
	_, s, err := e.load(ctx, number)
	if err != nil {
		return 0, err
	}
	n, err := knowledge.Persist(s, e.knowledgePath())
	if err != nil {
		return 0, err
	}
	if _, err := e.syncIndex(ctx, e.knowledgePath()); err != nil {
		e.logger().Warn("fact index sync failed", "error", err)
	}
	return n, nil
}

func (e *Editor) syncIndex(ctx context.Context, path string) (int, error) {
	if e.Index == nil {
		return 0, nil
	}
	records, err := knowledge.ReadRecords(path)
	if err != nil {
		return 0, err
	}
	return e.Index.Sync(ctx, records)
}
