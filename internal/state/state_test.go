package state

import (
	"reflect"
	"testing"
	"time"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestNew(t *testing.T) {
	s := New(42)
	if s.IssueNumber != 42 {
		t.Fatalf("IssueNumber = %d, want 42", s.IssueNumber)
	}
	if s.Phase != PhaseDiscovery {
		t.Fatalf("Phase = %q, want %q", s.Phase, PhaseDiscovery)
	}
	if len(s.Established)+len(s.Questions)+len(s.Prerequisites) != 0 {
		t.Fatalf("new state is not empty: %+v", s)
	}
}

func TestAddQuestion_Dedupes(t *testing.T) {
	s := New(1)
	if !s.AddQuestion("Who is the audience?", "") {
		t.Fatal("first AddQuestion returned false")
	}
	if s.AddQuestion("  who is the AUDIENCE?  ", "again") {
		t.Fatal("duplicate AddQuestion returned true")
	}
	if len(s.Questions) != 1 {
		t.Fatalf("len(Questions) = %d, want 1", len(s.Questions))
	}
	if s.Questions[0].Answered || s.Questions[0].AskedAt.IsZero() {
		t.Fatalf("unexpected question: %+v", s.Questions[0])
	}
}

func TestAddQuestion_UsesUTCTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	freezeClock(t, at)

	s := New(1)
	s.AddQuestion("What does the final chapter resolve?", "structure")
	q := s.Questions[0]
	if !q.AskedAt.Equal(at) || q.Context != "structure" || !s.LastUpdated.Equal(at) {
		t.Fatalf("question = %+v, LastUpdated = %v", q, s.LastUpdated)
	}
}

func TestMarkQuestionAnswered(t *testing.T) {
	s := New(1)
	s.AddQuestion("What's your transformation arc?", "")
	s.AddQuestion("Who is your audience?", "")

	if !s.MarkQuestionAnswered("AUDIENCE") {
		t.Fatal("MarkQuestionAnswered(AUDIENCE) = false")
	}
	if s.Questions[0].Answered || !s.Questions[1].Answered {
		t.Fatalf("answered flags = %v, %v", s.Questions[0].Answered, s.Questions[1].Answered)
	}
	if s.MarkQuestionAnswered("nothing like this") {
		t.Fatal("unmatched substring marked a question")
	}

	if !s.HasUnansweredQuestions() {
		t.Fatal("HasUnansweredQuestions = false")
	}
	unanswered := s.UnansweredQuestions()
	if len(unanswered) != 1 || unanswered[0].Question != "What's your transformation arc?" {
		t.Fatalf("UnansweredQuestions = %+v", unanswered)
	}
}

func TestMarkQuestionAnswered_FirstMatchOnly(t *testing.T) {
	s := New(1)
	s.AddQuestion("What is the tone of chapter one?", "")
	s.AddQuestion("What is the tone of chapter two?", "")

	s.MarkQuestionAnswered("tone")
	if !s.Questions[0].Answered || s.Questions[1].Answered {
		t.Fatalf("answered flags = %v, %v", s.Questions[0].Answered, s.Questions[1].Answered)
	}
}

func TestEstablishFact_Upserts(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	freezeClock(t, first)

	s := New(1)
	s.EstablishFact("Audience", "new managers")

	later := first.Add(time.Hour)
	freezeClock(t, later)
	s.EstablishFact("audience", "first-time managers")

	if len(s.Established) != 1 {
		t.Fatalf("len(Established) = %d, want 1", len(s.Established))
	}
	f := s.Established[0]
	if f.Key != "Audience" || f.Value != "first-time managers" || !f.EstablishedAt.Equal(later) {
		t.Fatalf("fact = %+v", f)
	}

	if v, ok := s.Fact("AUDIENCE"); !ok || v != "first-time managers" {
		t.Fatalf("Fact(AUDIENCE) = %q, %v", v, ok)
	}
}

func TestEstablishFact_RejectsBlankKey(t *testing.T) {
	s := New(1)
	for _, key := range []string{"", "   ", "\t\n"} {
		if s.EstablishFact(key, "orphan value") {
			t.Errorf("EstablishFact(%q) = true, want false", key)
		}
	}
	if len(s.Established) != 0 {
		t.Fatalf("Established = %+v, want none", s.Established)
	}
	if !s.LastUpdated.IsZero() {
		t.Fatalf("rejected fact touched LastUpdated: %v", s.LastUpdated)
	}

	if !s.EstablishFact("  Tone  ", "calm") {
		t.Fatal("EstablishFact with padded key = false")
	}
	if s.Established[0].Key != "Tone" {
		t.Fatalf("Key = %q, want trimmed %q", s.Established[0].Key, "Tone")
	}
	if got := Parse(Format(s), 1); len(got.Established) != 1 {
		t.Fatalf("reparsed facts = %+v", got.Established)
	}
}

func TestPrerequisites(t *testing.T) {
	s := New(1)
	if !s.AddPrerequisite("Outline agreed", "") {
		t.Fatal("AddPrerequisite(Outline agreed) = false")
	}
	if s.AddPrerequisite("outline AGREED", "") {
		t.Fatal("duplicate prerequisite accepted")
	}
	s.AddPrerequisite("Cover art chosen", "publish")

	if len(s.Prerequisites) != 2 {
		t.Fatalf("len(Prerequisites) = %d, want 2", len(s.Prerequisites))
	}
	if s.Prerequisites[0].Blocks != DefaultBlocks {
		t.Fatalf("Blocks = %q, want %q", s.Prerequisites[0].Blocks, DefaultBlocks)
	}

	if !s.HasUnmetPrerequisites(DefaultBlocks) {
		t.Fatal("HasUnmetPrerequisites(pr_creation) = false")
	}
	if n := len(s.UnmetPrerequisites("publish")); n != 1 {
		t.Fatalf("UnmetPrerequisites(publish) = %d, want 1", n)
	}
	if s.HasUnmetPrerequisites("nonexistent") {
		t.Fatal("HasUnmetPrerequisites(nonexistent) = true")
	}

	if !s.MarkPrerequisiteMet("outline") {
		t.Fatal("MarkPrerequisiteMet(outline) = false")
	}
	if s.HasUnmetPrerequisites(DefaultBlocks) {
		t.Fatal("pr_creation still blocked after outline met")
	}
	if s.MarkPrerequisiteMet("missing") {
		t.Fatal("MarkPrerequisiteMet(missing) = true")
	}
	if n := len(s.MetPrerequisites()); n != 1 {
		t.Fatalf("MetPrerequisites = %d, want 1", n)
	}
}

func TestSetPhase(t *testing.T) {
	s := New(1)
	s.SetPhase("  Feedback ")
	if s.Phase != PhaseFeedback {
		t.Fatalf("Phase = %q, want %q", s.Phase, PhaseFeedback)
	}
	s.SetPhase("")
	if s.Phase != PhaseDiscovery {
		t.Fatalf("Phase = %q, want %q", s.Phase, PhaseDiscovery)
	}
	if got := PhaseLabel(PhaseFeedback); got != "phase:feedback" {
		t.Fatalf("PhaseLabel = %q", got)
	}
}

func TestCompact_KeepsFactsDropsDone(t *testing.T) {
	s := New(7)
	s.SetPhase(PhaseRevision)
	s.EstablishFact("Title", "Night Shift")
	s.EstablishFact("Tone", "warm")
	s.AddQuestion("Answered one?", "")
	s.AddQuestion("Still open?", "")
	s.MarkQuestionAnswered("Answered")
	s.AddPrerequisite("Met gate", "")
	s.AddPrerequisite("Open gate", "")
	s.MarkPrerequisiteMet("Met")

	c := Compact(s)
	if c.IssueNumber != 7 || c.Phase != PhaseRevision {
		t.Fatalf("compacted header = #%d %q", c.IssueNumber, c.Phase)
	}
	if !reflect.DeepEqual(s.Established, c.Established) {
		t.Fatalf("Established = %+v, want %+v", c.Established, s.Established)
	}
	if len(c.Questions) != 1 || c.Questions[0].Question != "Still open?" {
		t.Fatalf("Questions = %+v", c.Questions)
	}
	if len(c.Prerequisites) != 1 || c.Prerequisites[0].Requirement != "Open gate" {
		t.Fatalf("Prerequisites = %+v", c.Prerequisites)
	}

	// The original is untouched.
	if len(s.Questions) != 2 || len(s.Prerequisites) != 2 {
		t.Fatalf("original mutated: %d questions, %d prerequisites", len(s.Questions), len(s.Prerequisites))
	}
}

func TestFactStrings(t *testing.T) {
	s := New(1)
	s.EstablishFact("Title", "Night Shift")
	if got := s.FactStrings(); !reflect.DeepEqual(got, []string{"Title: Night Shift"}) {
		t.Fatalf("FactStrings = %q", got)
	}
}
