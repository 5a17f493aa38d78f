// Package github is the issue tracker the editor talks to: reading an issue
// and its comments, rewriting the body, commenting, labelling and closing.
package github

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRepository is returned for a repository string that is not "owner/name".
var ErrInvalidRepository = errors.New("repository must be owner/name")

// Issue is the subset of a GitHub issue the editor uses.
type Issue struct {
	Number int
	Title  string
	Body   string
	State  string
	Author string
	Labels []string
}

// HasLabel reports whether the issue carries label (case-insensitive).
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Comment is one issue comment, oldest first when listed.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// Close reasons accepted by CloseIssue.
const (
	ReasonCompleted  = "completed"
	ReasonNotPlanned = "not_planned"
)

// IssueStore is the issue-tracker surface the editor needs. Missing issues are
// reported as fault.KindNotFound; rate limits and server errors as
// fault.KindTransient.
type IssueStore interface {
	GetIssue(ctx context.Context, number int) (*Issue, error)
	ListComments(ctx context.Context, number int) ([]Comment, error)
	UpdateBody(ctx context.Context, number int, body string) error
	CreateComment(ctx context.Context, number int, body string) error
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	CloseIssue(ctx context.Context, number int, reason string) error
}

// ParseRepository splits "owner/name".
func ParseRepository(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, s)
	}
	return owner, name, nil
}
