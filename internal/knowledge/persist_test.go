package knowledge

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bookctl/bookctl/internal/state"
)

func stateWithFacts(issue int, kv ...string) *state.ConversationState {
	s := state.New(issue)
	for i := 0; i+1 < len(kv); i += 2 {
		s.EstablishFact(kv[i], kv[i+1])
	}
	return s
}

func mustPersist(t *testing.T, s *state.ConversationState, path string) int {
	t.Helper()
	n, err := Persist(s, path)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	return n
}

func mustRead(t *testing.T, path string) []Record {
	t.Helper()
	records, err := ReadRecords(path)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	return records
}

func TestPersist_NoFactsWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb", "knowledge.jsonl")

	if n := mustPersist(t, state.New(1), path); n != 0 {
		t.Fatalf("Persist wrote %d records, want 0", n)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("knowledge file exists after empty persist: %v", err)
	}
}

func TestPersist_CreatesDirectoriesAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ai-context", "knowledge.jsonl")
	s := stateWithFacts(33, "Audience", "first-time managers", "Tone", "warm")
	s.Established[0].EstablishedAt = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	if n := mustPersist(t, s, path); n != 2 {
		t.Fatalf("Persist wrote %d records, want 2", n)
	}

	records := mustRead(t, path)
	if len(records) != 2 {
		t.Fatalf("records = %+v, want 2", records)
	}
	want := Record{
		Type:          TypeEstablishedFact,
		Key:           "Audience",
		Value:         "first-time managers",
		SourceIssue:   33,
		EstablishedAt: "2026-02-03T04:05:06Z",
	}
	if records[0] != want {
		t.Fatalf("records[0] = %+v, want %+v", records[0], want)
	}
	if !records[1].IsFact() {
		t.Fatalf("records[1] = %+v, want a fact", records[1])
	}
}

func TestPersist_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.jsonl")
	s := stateWithFacts(5, "Title", "Night Shift")

	if n := mustPersist(t, s, path); n != 1 {
		t.Fatalf("first Persist wrote %d, want 1", n)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if n := mustPersist(t, s, path); n != 0 {
		t.Fatalf("second Persist wrote %d, want 0", n)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("file changed:\n%s\n---\n%s", before, after)
	}
}

func TestPersist_KeysCompareCaseInsensitively(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.jsonl")
	mustPersist(t, stateWithFacts(1, "Audience", "managers"), path)

	if n := mustPersist(t, stateWithFacts(2, "AUDIENCE", "engineers", "Tone", "dry"), path); n != 1 {
		t.Fatalf("Persist wrote %d, want 1", n)
	}

	records := mustRead(t, path)
	if len(records) != 2 || records[0].Value != "managers" || records[1].Key != "Tone" {
		t.Fatalf("records = %+v", records)
	}
}

func TestPersist_SkipsBadLinesAndFixesMissingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.jsonl")
	seed := `{"question":"Who is it for?","answer":"New managers"}` + "\n" +
		"not json at all\n" +
		`{"type":"established_fact","key":"Tone","value":"warm"}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	if n := mustPersist(t, stateWithFacts(9, "tone", "cold", "Title", "Night Shift"), path); n != 1 {
		t.Fatalf("Persist wrote %d, want 1", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q, want 4", lines)
	}
	if !strings.Contains(lines[2], `"key":"Tone"`) || !strings.Contains(lines[3], `"key":"Title"`) {
		t.Fatalf("lines = %q", lines)
	}

	if records := mustRead(t, path); len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
}

func TestReadRecords_MissingFile(t *testing.T) {
	if records := mustRead(t, filepath.Join(t.TempDir(), "absent.jsonl")); len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
}

func TestAppendQA_OnePerIssue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ai-context", "knowledge.jsonl")
	mustPersist(t, stateWithFacts(2, "Tone", "warm"), path)

	rec, written, err := AppendQA(path, "Who is the reader?", "  First-time managers ", 4)
	if err != nil || !written {
		t.Fatalf("AppendQA = %v, %v; want written", written, err)
	}
	if rec.ID != "q004" {
		t.Fatalf("ID = %q, want q004", rec.ID)
	}

	again, written, err := AppendQA(path, "Who is the reader?", "Engineers", 4)
	if err != nil || written {
		t.Fatalf("second AppendQA = %v, %v; want skipped", written, err)
	}
	if again.Answer != "First-time managers" {
		t.Fatalf("existing record = %+v", again)
	}

	if _, _, err := AppendQA(path, "What should they feel?", "Less alone", 1234); err != nil {
		t.Fatalf("AppendQA: %v", err)
	}

	records := mustRead(t, path)
	if len(records) != 3 {
		t.Fatalf("records = %+v, want 3", records)
	}
	qa := records[1]
	if !qa.IsQA() || qa.IsFact() {
		t.Fatalf("records[1] = %+v, want a Q&A record", qa)
	}
	if qa.Answer != "First-time managers" || qa.SourceIssue != 4 || qa.Confidence != ConfidenceExplicit || qa.ExtractedAt == "" {
		t.Fatalf("records[1] = %+v", qa)
	}
	if records[2].ID != "q1234" {
		t.Fatalf("records[2].ID = %q, want q1234", records[2].ID)
	}

	b, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.QAPairs) != 2 || len(b.Facts) != 1 {
		t.Fatalf("QAPairs = %d, Facts = %d", len(b.QAPairs), len(b.Facts))
	}
}

func TestAppendQA_RequiresBothSides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.jsonl")
	if _, _, err := AppendQA(path, "Who?", "  ", 1); err == nil {
		t.Fatal("AppendQA with blank answer returned no error")
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("file written for rejected record: %v", err)
	}
}
