// Package editor runs the AI editor against one issue: it gathers the
// editorial context, keeps the conversation inside the model's budget, calls
// the LLM and writes the result back to the issue and its state block.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/knowledge"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/session"
	"github.com/bookctl/bookctl/internal/state"
)

// Editor holds the collaborators of a run. Issues, Provider and Counter are
// required; the rest have defaults.
type Editor struct {
	Issues   github.IssueStore
	Provider provider.Provider
	Counter  *session.Counter
	Model    string
	Budget   session.BudgetOptions

	KeepRecent           int     // 0 means session.DefaultKeepRecent
	WarnThreshold        float64 // 0 means session.DefaultSystemWarnThreshold
	FallbackToTruncation bool

	RepoDir       string // "" means "."
	KnowledgePath string // "" means state.DefaultKnowledgePath under RepoDir
	Index         *knowledge.Index

	Logger *slog.Logger
}

func (e *Editor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Editor) repoDir() string {
	if e.RepoDir == "" {
		return "."
	}
	return e.RepoDir
}

func (e *Editor) knowledgePath() string {
	p := e.KnowledgePath
	if p == "" {
		p = state.DefaultKnowledgePath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.repoDir(), p)
}

func (e *Editor) model() string {
	if e.Model != "" {
		return provider.Resolve(e.Model)
	}
	if e.Provider != nil {
		return e.Provider.DefaultModel()
	}
	return provider.DefaultModel
}

// load reads an issue and the state stored in its body.
func (e *Editor) load(ctx context.Context, number int) (*github.Issue, *state.ConversationState, error) {
	issue, err := e.Issues.GetIssue(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	return issue, state.Parse(issue.Body, issue.Number), nil
}

// save writes s into the issue body and moves the phase label to s.Phase.
func (e *Editor) save(ctx context.Context, issue *github.Issue, s *state.ConversationState) error {
	body := state.UpdateIssueBody(issue.Body, s)
	if body != issue.Body {
		if err := e.Issues.UpdateBody(ctx, issue.Number, body); err != nil {
			return err
		}
		issue.Body = body
	}
	return e.syncPhaseLabel(ctx, issue, s.Phase)
}

func (e *Editor) syncPhaseLabel(ctx context.Context, issue *github.Issue, phase string) error {
	want := state.PhaseLabel(phase)
	for _, l := range issue.Labels {
		if strings.HasPrefix(l, "phase:") && !strings.EqualFold(l, want) {
			if err := e.Issues.RemoveLabel(ctx, issue.Number, l); err != nil {
				return err
			}
		}
	}
	if issue.HasLabel(want) {
		return nil
	}
	return e.Issues.AddLabels(ctx, issue.Number, want)
}

// Mutate applies fn to the state of an issue and writes it back.
func (e *Editor) Mutate(ctx context.Context, number int, fn func(*state.ConversationState) error) (*state.ConversationState, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := e.save(ctx, issue, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ErrNoMatch is returned when a substring matches no question or prerequisite.
var ErrNoMatch = errors.New("nothing matched")

// Establish records a fact on the issue.
func (e *Editor) Establish(ctx context.Context, number int, key, value string) (*state.ConversationState, error) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return nil, errors.New("establish: key is empty")
	}
	return e.Mutate(ctx, number, func(s *state.ConversationState) error {
		s.EstablishFact(key, value)
		return nil
	})
}

// Answer marks the first outstanding question containing substr as answered.
func (e *Editor) Answer(ctx context.Context, number int, substr string) (*state.ConversationState, error) {
	return e.Mutate(ctx, number, func(s *state.ConversationState) error {
		if !s.MarkQuestionAnswered(substr) {
			return fmt.Errorf("answer %q: %w", substr, ErrNoMatch)
		}
		return nil
	})
}

// Require adds a prerequisite, or with met=true marks the first matching one met.
func (e *Editor) Require(ctx context.Context, number int, requirement, blocks string, met bool) (*state.ConversationState, error) {
	return e.Mutate(ctx, number, func(s *state.ConversationState) error {
		if met {
			if !s.MarkPrerequisiteMet(requirement) {
				return fmt.Errorf("prerequisite %q: %w", requirement, ErrNoMatch)
			}
			return nil
		}
		s.AddPrerequisite(requirement, blocks)
		return nil
	})
}

// SetPhase moves the issue to phase.
func (e *Editor) SetPhase(ctx context.Context, number int, phase string) (*state.ConversationState, error) {
	return e.Mutate(ctx, number, func(s *state.ConversationState) error {
		s.SetPhase(phase)
		return nil
	})
}

// ShowState returns the parsed state of an issue without changing anything.
func (e *Editor) ShowState(ctx context.Context, number int) (*state.ConversationState, error) {
	_, s, err := e.load(ctx, number)
	return s, err
}

// CompactResult reports what CompactState folded away.
type CompactResult struct {
	State     *state.ConversationState
	Compacted session.CompactedContext
}

// CompactState drops answered questions and met prerequisites from the
// issue's state block. Facts and phase are kept.
func (e *Editor) CompactState(ctx context.Context, number int) (*CompactResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}

	var items session.CompletedItems
	for _, q := range s.AnsweredQuestions() {
		items.Questions = append(items.Questions, q.Question)
	}
	for _, p := range s.MetPrerequisites() {
		items.Prerequisites = append(items.Prerequisites, p.Requirement)
	}
	compacted := session.CompactCompletedItems(ctx, e.Counter, items)

	c := state.Compact(s)
	if err := e.save(ctx, issue, c); err != nil {
		return nil, err
	}
	if compacted.ItemsCompacted > 0 {
		e.logger().Info("compacted state", "issue", number, "items", compacted.ItemsCompacted,
			"original_tokens", compacted.OriginalTokens, "compacted_tokens", compacted.CompactedTokens)
	}
	return &CompactResult{State: c, Compacted: compacted}, nil
}
