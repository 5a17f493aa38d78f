package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bookctl/bookctl/internal/provider"
)

// fakeLLM answers every request with a fixed reply.
type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Name() string         { return "fake" }
func (f *fakeLLM) DefaultModel() string { return "fake-1" }

func (f *fakeLLM) Chat(_ context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	for _, m := range req.Messages {
		for _, c := range m.Content {
			f.prompts = append(f.prompts, c.Text)
		}
	}
	ch := make(chan provider.Event, 2)
	if f.err != nil {
		ch <- provider.Event{Type: provider.EventError, Error: f.err}
	} else {
		ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: f.reply}
		ch <- provider.Event{Type: provider.EventDone, Usage: &provider.Usage{}}
	}
	close(ch)
	return ch, nil
}

func longComments(n int) []Comment {
	authors := []string{"author", "editor"}
	var out []Comment
	for i := 0; i < n; i++ {
		out = append(out, Comment{
			Author: authors[i%2],
			Body:   strings.Repeat("This chapter explores the quiet cost of ambition. ", 20),
		})
	}
	return out
}

func TestSummarize_ShortHistoryIsUnchanged(t *testing.T) {
	llm := &fakeLLM{reply: "should not be used"}
	s := &Summarizer{Provider: llm}

	// Three comments of 50 tokens each under the 4-chars estimate.
	body := strings.Repeat("x", 200)
	comments := []Comment{{"alice", body}, {"bob", body}, {"alice", body}}

	got, err := s.Summarize(context.Background(), comments, nil, 5000)
	if err != nil {
		t.Fatal(err)
	}
	want := "alice: " + body + "\n\nbob: " + body + "\n\nalice: " + body
	if got.Text != want {
		t.Errorf("Text was modified:\n%s", got.Text)
	}
	if got.CommentsSummarized != 0 || got.SavingsPercent != 0.0 {
		t.Errorf("CommentsSummarized=%d SavingsPercent=%v, want 0/0.0", got.CommentsSummarized, got.SavingsPercent)
	}
	if got.OriginalTokens != got.SummaryTokens {
		t.Errorf("token counts differ: %d vs %d", got.OriginalTokens, got.SummaryTokens)
	}
	if len(llm.prompts) != 0 {
		t.Error("LLM should not be called for short history")
	}
}

func TestSummarize_OnlyRecentOverBudget(t *testing.T) {
	llm := &fakeLLM{reply: "unused"}
	s := &Summarizer{Provider: llm}
	comments := longComments(2)

	got, err := s.Summarize(context.Background(), comments, []string{"fact"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != FormatConversation(comments) {
		t.Errorf("expected recent-only text, got:\n%s", got.Text)
	}
	if got.CommentsSummarized != 0 || got.SavingsPercent != 0.0 {
		t.Errorf("CommentsSummarized=%d SavingsPercent=%v, want 0/0.0", got.CommentsSummarized, got.SavingsPercent)
	}
	if len(llm.prompts) != 0 {
		t.Error("LLM should not be called without older comments")
	}
}

func TestSummarize_FactsSurviveForgetfulLLM(t *testing.T) {
	llm := &fakeLLM{reply: "They talked about chapters in general."}
	s := &Summarizer{Provider: llm}
	facts := []string{
		"Title: The Quiet Year",
		"Audience: first-time managers",
		"Tone: warm but direct",
	}
	comments := longComments(7)

	got, err := s.Summarize(context.Background(), comments, facts, 100)
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range facts {
		if !strings.Contains(got.Text, f) {
			t.Errorf("fact %q missing from summary", f)
		}
	}
	if got.CommentsSummarized != 4 {
		t.Errorf("CommentsSummarized = %d, want 4", got.CommentsSummarized)
	}

	factsAt := strings.Index(got.Text, "## Established Facts (PRESERVE THESE)")
	summaryAt := strings.Index(got.Text, "## Conversation Summary (earlier discussion)")
	recentAt := strings.Index(got.Text, "## Recent Discussion")
	if factsAt != 0 || summaryAt < factsAt || recentAt < summaryAt {
		t.Errorf("sections out of order: facts=%d summary=%d recent=%d", factsAt, summaryAt, recentAt)
	}
	if !strings.Contains(got.Text, llm.reply) {
		t.Error("LLM narrative missing")
	}
	if !strings.HasSuffix(got.Text, FormatConversation(comments[4:])) {
		t.Error("recent comments not kept verbatim at the end")
	}

	if len(llm.prompts) != 1 {
		t.Fatalf("LLM called %d times, want 1", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "**Already established:**\n- Title: The Quiet Year") {
		t.Error("prompt should list established facts")
	}
	if got.SavingsPercent <= 0 {
		t.Errorf("SavingsPercent = %v, expected positive", got.SavingsPercent)
	}
}

func TestSummarize_NoFactsOmitsFactBlock(t *testing.T) {
	s := &Summarizer{Provider: &fakeLLM{reply: "digest"}}

	got, err := s.Summarize(context.Background(), longComments(5), nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got.Text, "## Conversation Summary (earlier discussion)\n\ndigest\n\n## Recent Discussion\n\n") {
		t.Errorf("unexpected layout:\n%.200s", got.Text)
	}
}

func TestSummarize_CustomKeepRecent(t *testing.T) {
	s := &Summarizer{Provider: &fakeLLM{reply: "digest"}, KeepRecent: 1}

	got, err := s.Summarize(context.Background(), longComments(5), nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got.CommentsSummarized != 4 {
		t.Errorf("CommentsSummarized = %d, want 4", got.CommentsSummarized)
	}
}

func TestSummarize_LLMErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	s := &Summarizer{Provider: &fakeLLM{err: boom}}

	_, err := s.Summarize(context.Background(), longComments(6), []string{"a"}, 10)
	if !errors.Is(err, boom) {
		t.Fatalf("expected LLM error, got %v", err)
	}
}

func TestSavingsPercent(t *testing.T) {
	tests := []struct {
		original, summary int
		want              float64
	}{
		{1000, 250, 75.0},
		{3, 2, 33.3},
		{100, 150, -50.0},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := savingsPercent(tt.original, tt.summary); got != tt.want {
			t.Errorf("savingsPercent(%d, %d) = %v, want %v", tt.original, tt.summary, got, tt.want)
		}
	}
}

func TestAnonymousAuthor(t *testing.T) {
	got := FormatConversation([]Comment{{Body: "hi"}})
	if got != "**unknown:** hi" {
		t.Errorf("got %q", got)
	}
}
