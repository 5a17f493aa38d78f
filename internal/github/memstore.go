package github

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bookctl/bookctl/internal/fault"
)

// MemStore is an in-memory IssueStore, used for dry runs and tests.
type MemStore struct {
	mu       sync.Mutex
	issues   map[int]*Issue
	comments map[int][]Comment
	nextID   int64
}

// NewMemStore returns a store holding copies of issues.
func NewMemStore(issues ...Issue) *MemStore {
	m := &MemStore{issues: map[int]*Issue{}, comments: map[int][]Comment{}}
	for _, is := range issues {
		m.Put(is)
	}
	return m
}

// Put adds or replaces an issue. An empty State means "open".
func (m *MemStore) Put(is Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if is.State == "" {
		is.State = "open"
	}
	is.Labels = slices.Clone(is.Labels)
	m.issues[is.Number] = &is
}

// AddComment appends a comment by author, as if posted on GitHub.
func (m *MemStore) AddComment(number int, author, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addComment(number, author, body)
}

func (m *MemStore) addComment(number int, author, body string) {
	m.nextID++
	m.comments[number] = append(m.comments[number], Comment{
		ID:        m.nextID,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
}

// Comments returns a copy of the comments on an issue.
func (m *MemStore) Comments(number int) []Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.comments[number])
}

func (m *MemStore) lookup(op string, number int) (*Issue, error) {
	is, ok := m.issues[number]
	if !ok {
		return nil, fault.NotFound(op, fmt.Errorf("issue #%d does not exist", number))
	}
	return is, nil
}

func (m *MemStore) GetIssue(_ context.Context, number int) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup("get issue", number)
	if err != nil {
		return nil, err
	}
	cp := *is
	cp.Labels = slices.Clone(is.Labels)
	return &cp, nil
}

func (m *MemStore) ListComments(_ context.Context, number int) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup("list comments", number); err != nil {
		return nil, err
	}
	return slices.Clone(m.comments[number]), nil
}

func (m *MemStore) UpdateBody(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup("update issue", number)
	if err != nil {
		return err
	}
	is.Body = body
	return nil
}

// CreateComment posts as "bookctl[bot]".
func (m *MemStore) CreateComment(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup("comment on issue", number); err != nil {
		return err
	}
	m.addComment(number, "bookctl[bot]", body)
	return nil
}

func (m *MemStore) AddLabels(_ context.Context, number int, labels ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup("label issue", number)
	if err != nil {
		return err
	}
	for _, l := range labels {
		if !is.HasLabel(l) {
			is.Labels = append(is.Labels, l)
		}
	}
	return nil
}

func (m *MemStore) RemoveLabel(_ context.Context, number int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup("unlabel issue", number)
	if err != nil {
		return err
	}
	is.Labels = slices.DeleteFunc(is.Labels, func(l string) bool { return strings.EqualFold(l, label) })
	return nil
}

func (m *MemStore) CloseIssue(_ context.Context, number int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup("close issue", number)
	if err != nil {
		return err
	}
	is.State = "closed"
	return nil
}
