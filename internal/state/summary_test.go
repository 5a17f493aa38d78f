package state

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestExtractQuestions_BoldQuestions(t *testing.T) {
	response := `Thanks for the memo. A few things before I give feedback:

1. **Who do you picture reading this chapter first?**
2. **What should the reader feel on the last page?**

I also wonder whether the storm scene belongs earlier, but that can wait.

**Does that sound right?** **Sound good?**`

	got := ExtractQuestions(response)
	want := []string{
		"Who do you picture reading this chapter first?",
		"What should the reader feel on the last page?",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractQuestions = %q, want %q", got, want)
	}
}

func TestExtractQuestions_FiltersShortAndConfirmations(t *testing.T) {
	response := "**Why?** **Make sense so far, or should I slow down?** **Is the title final?**"
	if got := ExtractQuestions(response); len(got) != 0 {
		t.Fatalf("ExtractQuestions = %q, want none", got)
	}
}

func TestExtractQuestions_Dedupes(t *testing.T) {
	got := ExtractQuestions("**Which chapter should we tackle next?**\n\nLater: **WHICH chapter should we tackle next?**")
	if len(got) != 1 || got[0] != "Which chapter should we tackle next?" {
		t.Fatalf("ExtractQuestions = %q", got)
	}
}

func TestExtractQuestions_IgnoresNonQuestionsAndCode(t *testing.T) {
	response := "**This is bold but not a question.**\n\n```\n**Inside a code block, is this a question?**\n```\n"
	if got := ExtractQuestions(response); len(got) != 0 {
		t.Fatalf("ExtractQuestions = %q, want none", got)
	}
}

func TestExtractQuestions_SoftLineBreakInsideBold(t *testing.T) {
	got := ExtractQuestions("**Where does the turning point\nof the book happen?**")
	if len(got) != 1 || got[0] != "Where does the turning point of the book happen?" {
		t.Fatalf("ExtractQuestions = %q", got)
	}
}

func TestFormatQuestionsReminder(t *testing.T) {
	s := New(1)
	if out := FormatQuestionsReminder(s); out != "" {
		t.Fatalf("reminder for empty state = %q", out)
	}

	for i := 1; i <= 5; i++ {
		s.AddQuestion(fmt.Sprintf("Question %d?", i), "")
	}
	s.MarkQuestionAnswered("Question 1")

	out := FormatQuestionsReminder(s)
	for _, want := range []string{"**Still waiting for your thoughts on:**", "- Question 2?", "- Question 4?", "*(and 1 more)*"} {
		if !strings.Contains(out, want) {
			t.Errorf("reminder missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"Question 1?", "Question 5?"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("reminder should not contain %q:\n%s", unwanted, out)
		}
	}
}

func TestFormatPrerequisiteBlocker(t *testing.T) {
	s := New(1)
	if out := FormatPrerequisiteBlocker(s, DefaultBlocks); out != "" {
		t.Fatalf("blocker for empty state = %q", out)
	}

	for _, p := range DefaultPrerequisites() {
		s.AddPrerequisite(p.Requirement, p.Blocks)
	}
	s.AddQuestion("What is the working title?", "")

	out := FormatPrerequisiteBlocker(s, DefaultBlocks)
	if !strings.HasPrefix(out, "Before I can create a PR") {
		t.Fatalf("blocker prefix:\n%s", out)
	}
	for _, want := range []string{
		"- What is the working title?",
		"- Content outline or structure defined",
		"- Actual chapter content written (not just ideas)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("blocker missing %q", want)
		}
	}
	if !strings.HasSuffix(out, "Which would you like to address?") {
		t.Fatalf("blocker suffix:\n%s", out)
	}
}

func TestDefaultPrerequisites(t *testing.T) {
	got := DefaultPrerequisites()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, p := range got {
		if p.Met || p.Blocks != DefaultBlocks {
			t.Errorf("prerequisite = %+v", p)
		}
	}
}

func TestContextReferences(t *testing.T) {
	refs := ContextReferences(33, "")
	if len(refs) != 3 {
		t.Fatalf("len = %d, want 3", len(refs))
	}
	if refs[0] != "Issue #33 comments - full conversation history" {
		t.Fatalf("refs[0] = %q", refs[0])
	}
	if !strings.HasPrefix(refs[2], DefaultKnowledgePath+" ") {
		t.Fatalf("refs[2] = %q, want default knowledge path", refs[2])
	}

	refs = ContextReferences(33, "kb/facts.jsonl")
	if !strings.HasPrefix(refs[2], "kb/facts.jsonl ") {
		t.Fatalf("refs[2] = %q, want configured knowledge path", refs[2])
	}
}

func TestFormatClosingSummary_Completed(t *testing.T) {
	s := New(21)
	s.EstablishFact("Audience", "first-time managers")
	s.EstablishFact("Tone", "warm")
	for i := 1; i <= 7; i++ {
		s.AddQuestion(fmt.Sprintf("Resolved question %d?", i), "")
		s.MarkQuestionAnswered(fmt.Sprintf("question %d", i))
	}
	s.AddQuestion("Deferred one?", "")

	out := FormatClosingSummary(s, ClosingOptions{RelatedPR: 30})

	if !strings.HasPrefix(out, "## 📋 Issue Summary\n") {
		t.Fatalf("summary prefix:\n%s", out)
	}
	for _, want := range []string{
		"**Status:** ✅ Completed",
		"**Related PR:** #30",
		"### Decisions Made\n\n- **Audience:** first-time managers\n- **Tone:** warm",
		"- ✅ Resolved question 5?",
		"- *(+2 more)*",
		"### Deferred Questions\n\n- ⏳ Deferred one?",
		"- Facts persisted to `.ai-context/knowledge.jsonl`",
		"- Content integrated via PR #30",
		"- Issue #21 comments - full conversation history",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
	if strings.Contains(out, "Resolved question 6?") {
		t.Error("summary lists more than five resolved questions")
	}
	if !strings.HasSuffix(out, "---\n*Summary generated by AI Editor*") {
		t.Fatalf("summary suffix:\n%s", out)
	}
}

func TestFormatClosingSummary_Reasons(t *testing.T) {
	tests := map[string]string{
		"not_planned": "**Status:** ⏭️ Not planned",
		"duplicate":   "**Status:** 🔄 Duplicate",
		"superseded":  "**Status:** superseded",
	}
	for reason, want := range tests {
		out := FormatClosingSummary(New(1), ClosingOptions{Reason: reason, KnowledgePath: "kb/facts.jsonl"})
		if !strings.Contains(out, want) {
			t.Errorf("%s: missing %q", reason, want)
		}
		if strings.Contains(out, "Related PR") || strings.Contains(out, "Decisions Made") {
			t.Errorf("%s: unexpected sections:\n%s", reason, out)
		}
	}
}

func TestFormatClosingSummary_CustomKnowledgePathEverywhere(t *testing.T) {
	out := FormatClosingSummary(New(1), ClosingOptions{KnowledgePath: "kb/facts.jsonl"})

	if !strings.Contains(out, "- Facts persisted to `kb/facts.jsonl`") {
		t.Errorf("summary missing persisted path:\n%s", out)
	}
	if !strings.Contains(out, "- kb/facts.jsonl - established facts from all issues") {
		t.Errorf("summary reference does not use configured path:\n%s", out)
	}
	if strings.Contains(out, DefaultKnowledgePath) {
		t.Errorf("summary still mentions %s:\n%s", DefaultKnowledgePath, out)
	}
}
