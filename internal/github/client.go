package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/bookctl/bookctl/internal/fault"
)

// Client implements IssueStore against the GitHub REST API for one repository.
type Client struct {
	api   *gh.Client
	owner string
	repo  string
}

// NewClient authenticates with token. An empty token gives anonymous,
// read-only access.
func NewClient(ctx context.Context, token, owner, repo string) *Client {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return &Client{api: gh.NewClient(hc), owner: owner, repo: repo}
}

// Repository returns "owner/name".
func (c *Client) Repository() string { return c.owner + "/" + c.repo }

func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	is, _, err := c.api.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify(fmt.Sprintf("get issue #%d", number), err)
	}
	out := &Issue{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		Body:   is.GetBody(),
		State:  is.GetState(),
		Author: is.GetUser().GetLogin(),
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out, nil
}

func (c *Client) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var out []Comment
	for {
		page, resp, err := c.api.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list comments #%d", number), err)
		}
		for _, cm := range page {
			out = append(out, Comment{
				ID:        cm.GetID(),
				Author:    cm.GetUser().GetLogin(),
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) UpdateBody(ctx context.Context, number int, body string) error {
	_, _, err := c.api.Issues.Edit(ctx, c.owner, c.repo, number, &gh.IssueRequest{Body: gh.String(body)})
	return classify(fmt.Sprintf("update issue #%d", number), err)
}

func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := c.api.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{Body: gh.String(body)})
	return classify(fmt.Sprintf("comment on issue #%d", number), err)
}

func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := c.api.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	return classify(fmt.Sprintf("label issue #%d", number), err)
}

// RemoveLabel is a no-op when the label is not on the issue.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := c.api.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	err = classify(fmt.Sprintf("unlabel issue #%d", number), err)
	if fault.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) CloseIssue(ctx context.Context, number int, reason string) error {
	if reason == "" {
		reason = ReasonCompleted
	}
	req := &gh.IssueRequest{State: gh.String("closed")}
	// GitHub only accepts its own reasons; anything else closes without one.
	if reason == ReasonCompleted || reason == ReasonNotPlanned {
		req.StateReason = gh.String(reason)
	}
	_, _, err := c.api.Issues.Edit(ctx, c.owner, c.repo, number, req)
	return classify(fmt.Sprintf("close issue #%d", number), err)
}

// classify maps go-github errors onto fault kinds. nil stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rl *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &rl) || errors.As(err, &abuse) {
		return fault.Transient(op, err)
	}
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch code := er.Response.StatusCode; {
		case code == http.StatusNotFound || code == http.StatusGone:
			return fault.NotFound(op, err)
		case code == http.StatusUnprocessableEntity:
			return fault.Invalid(op, err)
		case code >= 500:
			return fault.Transient(op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
