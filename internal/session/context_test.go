package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// tinyBudget leaves 1000 input tokens on an unregistered 128k model:
// 300 system, 400 conversation, 300 content.
func tinyBudget() BudgetOptions {
	opts := DefaultBudgetOptions()
	opts.MaxOutput = 127000
	return opts
}

func TestPrepare_NoSummarizationWhenSmall(t *testing.T) {
	llm := &fakeLLM{reply: "unused"}
	p := &Preparer{
		Summarizer: &Summarizer{Provider: llm},
		Model:      "unit-test-model",
		Options:    DefaultBudgetOptions(),
	}
	comments := []Comment{{"author", "Here is chapter one."}, {"editor", "Thanks!"}}

	got, err := p.Prepare(context.Background(), comments, "You are an editor.", "Chapter text", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Conversation != "**author:** Here is chapter one.\n\n**editor:** Thanks!" {
		t.Errorf("Conversation = %q", got.Conversation)
	}
	if got.Summary != nil {
		t.Error("expected no summary")
	}
	if got.Budget.SystemTokens != EstimateTokens("You are an editor.") {
		t.Errorf("SystemTokens = %d", got.Budget.SystemTokens)
	}
	if got.Budget.ContentTokens != EstimateTokens("Chapter text") {
		t.Errorf("ContentTokens = %d", got.Budget.ContentTokens)
	}
	if len(llm.prompts) != 0 {
		t.Error("LLM should not be called")
	}
}

func TestPrepare_SummarizesLongConversation(t *testing.T) {
	var buf bytes.Buffer
	llm := &fakeLLM{reply: "Earlier they agreed on structure."}
	p := &Preparer{
		Summarizer: &Summarizer{Provider: llm},
		Model:      "unit-test-model",
		Options:    tinyBudget(),
		Logger:     bufferLogger(&buf),
	}
	facts := []string{"Working title: Night Shift"}

	got, err := p.Prepare(context.Background(), longComments(8), "sys", "", facts)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary == nil || got.Summary.CommentsSummarized != 5 {
		t.Fatalf("expected 5 comments summarized, got %+v", got.Summary)
	}
	if !strings.Contains(got.Conversation, "Working title: Night Shift") {
		t.Error("fact missing from prepared conversation")
	}
	if got.Budget.ConversationTokens != got.Summary.SummaryTokens {
		t.Errorf("ConversationTokens = %d, want summary tokens %d",
			got.Budget.ConversationTokens, got.Summary.SummaryTokens)
	}
	if !strings.Contains(buf.String(), "Summarized 5 comments") {
		t.Errorf("summarization not logged:\n%s", buf.String())
	}
}

func TestPrepare_SummarizationFailurePropagates(t *testing.T) {
	boom := errors.New("provider down")
	p := &Preparer{
		Summarizer: &Summarizer{Provider: &fakeLLM{err: boom}},
		Model:      "unit-test-model",
		Options:    tinyBudget(),
		Logger:     bufferLogger(&bytes.Buffer{}),
	}

	_, err := p.Prepare(context.Background(), longComments(8), "sys", "", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestPrepare_FallbackToTruncation(t *testing.T) {
	var buf bytes.Buffer
	p := &Preparer{
		Summarizer:           &Summarizer{Provider: &fakeLLM{err: errors.New("provider down")}},
		Model:                "unit-test-model",
		Options:              tinyBudget(),
		Logger:               bufferLogger(&buf),
		FallbackToTruncation: true,
	}

	got, err := p.Prepare(context.Background(), longComments(8), "sys", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Truncated {
		t.Error("expected Truncated")
	}
	if !strings.HasPrefix(got.Conversation, truncatedHead) {
		t.Errorf("expected head truncation marker, got %.60q", got.Conversation)
	}
	if got.Budget.ConversationTokens > got.Budget.ConversationBudget {
		t.Errorf("conversation %d still over its budget %d",
			got.Budget.ConversationTokens, got.Budget.ConversationBudget)
	}
	if !strings.Contains(buf.String(), "summarization failed") {
		t.Error("fallback not logged")
	}
}

func TestPrepare_InvalidBudgetIsError(t *testing.T) {
	p := &Preparer{Model: "unit-test-model", Options: BudgetOptions{MaxOutput: 500000}}

	_, err := p.Prepare(context.Background(), nil, "sys", "", nil)
	if !errors.Is(err, ErrOutputExceedsWindow) {
		t.Fatalf("expected ErrOutputExceedsWindow, got %v", err)
	}
}

func TestPrepare_OverBudgetStillReturns(t *testing.T) {
	var buf bytes.Buffer
	p := &Preparer{
		Summarizer: &Summarizer{Provider: &fakeLLM{reply: "digest"}},
		Model:      "unit-test-model",
		Options:    tinyBudget(),
		Logger:     bufferLogger(&buf),
	}
	hugeSystem := strings.Repeat("persona ", 1000) // ~2000 tokens

	got, err := p.Prepare(context.Background(), nil, hugeSystem, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Budget.IsOverBudget() {
		t.Error("expected over budget")
	}
	out := buf.String()
	if !strings.Contains(out, "WARNING: System prompt at") {
		t.Errorf("missing WARNING:\n%s", out)
	}
	if !strings.Contains(out, "CRITICAL: Context is over budget!") {
		t.Errorf("missing CRITICAL:\n%s", out)
	}
}

func TestCheckSystemBudget(t *testing.T) {
	tests := []struct {
		name         string
		budget       TokenBudget
		wantWarning  bool
		wantCritical bool
		wantPercent  string
	}{
		{
			name:   "comfortably under",
			budget: TokenBudget{AvailableInput: 1000, SystemBudget: 300, SystemTokens: 100},
		},
		{
			name:        "system above 90 percent",
			budget:      TokenBudget{AvailableInput: 1000, SystemBudget: 300, SystemTokens: 285},
			wantWarning: true,
			wantPercent: "95%",
		},
		{
			name:         "over total",
			budget:       TokenBudget{AvailableInput: 1000, SystemBudget: 300, SystemTokens: 100, ContentTokens: 950},
			wantCritical: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			CheckSystemBudget(bufferLogger(&buf), &tt.budget, 0.9)
			out := buf.String()

			if got := strings.Contains(out, "WARNING"); got != tt.wantWarning {
				t.Errorf("WARNING logged = %v, want %v\n%s", got, tt.wantWarning, out)
			}
			if got := strings.Contains(out, "CRITICAL"); got != tt.wantCritical {
				t.Errorf("CRITICAL logged = %v, want %v\n%s", got, tt.wantCritical, out)
			}
			if tt.wantPercent != "" && !strings.Contains(out, tt.wantPercent) {
				t.Errorf("expected %s in %s", tt.wantPercent, out)
			}
		})
	}
}

func TestTrimComments_KeepsRecent(t *testing.T) {
	comments := longComments(6)

	got := TrimComments(context.Background(), nil, comments, 10, 3)
	if len(got) != 3 {
		t.Fatalf("kept %d comments, want 3", len(got))
	}
	if got[0] != comments[3] {
		t.Error("expected the three most recent comments")
	}
}

func TestTrimComments_NoTrimWhenFits(t *testing.T) {
	comments := []Comment{{"a", "x"}, {"b", "y"}, {"c", "z"}, {"d", "w"}}
	got := TrimComments(context.Background(), nil, comments, 1000, 2)
	if len(got) != 4 {
		t.Errorf("kept %d comments, want 4", len(got))
	}
}
